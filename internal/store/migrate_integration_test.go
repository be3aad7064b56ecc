// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/natours/natours/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx         context.Context
		container   *postgres.PostgresContainer
		databaseURL string
		migrator    *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("natours_test"),
			postgres.WithUsername("natours"),
			postgres.WithPassword("natours"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())

		databaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(databaseURL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			_ = migrator.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("starts empty", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies and rolls back every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Name).To(Equal("000002_reset_token_index"))
		Expect(status.Pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})

	It("enforces the users constraints", func() {
		Expect(migrator.Up()).To(Succeed())

		pool, err := store.Connect(ctx, databaseURL, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		insert := func(p *pgxpool.Pool, id, email, role string) error {
			_, err := p.Exec(ctx, `INSERT INTO users (id, name, email, password_hash, role) VALUES ($1, 'n', $2, 'h', $3)`,
				id, email, role)
			return err
		}

		Expect(insert(pool, "a", "case@example.com", "user")).To(Succeed())
		Expect(insert(pool, "b", "CASE@example.com", "user")).NotTo(Succeed(), "email unique ignoring case")
		Expect(insert(pool, "c", "role@example.com", "root")).NotTo(Succeed(), "unknown role")

		_, err = pool.Exec(ctx, `UPDATE users SET password_reset_token_hash = 'x' WHERE id = 'a'`)
		Expect(err).To(HaveOccurred(), "reset hash without expiry")
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})
})
