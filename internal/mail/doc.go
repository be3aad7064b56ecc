// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package mail delivers auth notifications by SMTP or to the log.
package mail
