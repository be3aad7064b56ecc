// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package cli_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const seedUsers = `
version: 1.0.0
users:
  - name: Laura Wilson
    email: laura@example.com
    role: admin
    password: test1234
  - name: Leo Gillespie
    email: leo@example.com
    role: guide
    password: test1234
`

func writeSeed() string {
	path := filepath.Join(env.workDir, "users.yaml")
	Expect(os.WriteFile(path, []byte(seedUsers), 0o600)).To(Succeed())
	return path
}

type response struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
	Data    struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	} `json:"data"`
}

func call(method, url, body, token string) (int, response) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out response
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

var _ = Describe("Natours CLI", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx)
	})

	Describe("migrate", func() {
		It("applies, reports and rolls back the schema", func() {
			out, err := run(ctx, "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Current version: none"))

			out, err = run(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Migrations applied"))

			out, err = run(ctx, "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Pending: none"))

			out, err = run(ctx, "migrate", "down", "--all")
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("All migrations rolled back"))
		})
	})

	Describe("seed", func() {
		BeforeEach(func() {
			out, err := run(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), out)
		})

		It("imports idempotently and deletes the file's users", func() {
			path := writeSeed()

			out, err := run(ctx, "seed", "import", path)
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Created 2 user(s), skipped 0 existing"))

			out, err = run(ctx, "seed", "import", path)
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Created 0 user(s), skipped 2 existing"))

			var count int
			Expect(env.pool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(2))

			out, err = run(ctx, "seed", "delete", path)
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Deleted 2 user(s), 0 not found"))
		})
	})

	Describe("serve", func() {
		var (
			server  *exec.Cmd
			apiURL  string
			metrics string
		)

		BeforeEach(func() {
			out, err := run(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), out)
			out, err = run(ctx, "seed", "import", writeSeed())
			Expect(err).NotTo(HaveOccurred(), out)

			addr := freeAddr()
			metrics = freeAddr()
			apiURL = "http://" + addr + "/api/v1/users"

			server = command(ctx, "serve", "--addr", addr, "--metrics-addr", metrics, "--log-format", "text")
			Expect(server.Start()).To(Succeed())

			Eventually(func() error {
				_, err := run(ctx, "status", "--metrics-addr", metrics)
				return err
			}).WithTimeout(15 * time.Second).WithPolling(200 * time.Millisecond).Should(Succeed())
		})

		AfterEach(func() {
			if server != nil && server.Process != nil {
				_ = server.Process.Signal(syscall.SIGTERM)
				_ = server.Wait()
			}
		})

		It("logs in a seeded admin who can read other users", func() {
			code, body := call(http.MethodPost, apiURL+"/login", `{"email":"laura@example.com","password":"test1234"}`, "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body.Token).NotTo(BeEmpty())
			adminToken := body.Token

			code, body = call(http.MethodPost, apiURL+"/login", `{"email":"leo@example.com","password":"test1234"}`, "")
			Expect(code).To(Equal(http.StatusOK))
			guideID := body.Data.User.ID
			guideToken := body.Token

			code, body = call(http.MethodGet, apiURL+"/"+guideID, "", adminToken)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body.Data.User.Role).To(Equal("guide"))

			code, _ = call(http.MethodGet, apiURL+"/"+guideID, "", guideToken)
			Expect(code).To(Equal(http.StatusForbidden))
		})

		It("signs up and rejects a duplicate email", func() {
			signup := `{"name":"Jennifer Hardy","email":"jennifer@example.com","password":"pass1234","passwordConfirm":"pass1234"}`
			code, body := call(http.MethodPost, apiURL+"/signup", signup, "")
			Expect(code).To(Equal(http.StatusCreated))
			Expect(body.Token).NotTo(BeEmpty())

			code, body = call(http.MethodPost, apiURL+"/signup", signup, "")
			Expect(code).To(Equal(http.StatusConflict))
			Expect(body.Status).To(Equal("fail"))
		})

		It("rejects a token after the password changes", func() {
			code, body := call(http.MethodPost, apiURL+"/login", `{"email":"leo@example.com","password":"test1234"}`, "")
			Expect(code).To(Equal(http.StatusOK))
			oldToken := body.Token

			code, body = call(http.MethodPatch, apiURL+"/updateMyPassword",
				`{"passwordCurrent":"test1234","password":"newpass99","passwordConfirm":"newpass99"}`, oldToken)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body.Token).NotTo(BeEmpty())

			code, _ = call(http.MethodGet, apiURL+"/me", "", oldToken)
			Expect(code).To(Equal(http.StatusUnauthorized))

			code, _ = call(http.MethodGet, apiURL+"/me", "", body.Token)
			Expect(code).To(Equal(http.StatusOK))
		})
	})
})
