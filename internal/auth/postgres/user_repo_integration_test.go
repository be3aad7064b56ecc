// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package postgres_test

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		repo *postgres.UserRepository
		now  time.Time
	)

	newUser := func(email string) *auth.User {
		user, err := auth.NewUser("Integration User", email, "$argon2id$stub", auth.RoleUser, now)
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	BeforeEach(func() {
		truncateUsers()
		repo = postgres.NewUserRepository(pool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	Describe("Create", func() {
		It("stores a user that can be read back by id and email", func() {
			user := newUser("reader@example.com")
			Expect(repo.Create(suiteCtx, user)).To(Succeed())

			byID, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("reader@example.com"))
			Expect(byID.Role).To(Equal(auth.RoleUser))
			Expect(byID.PasswordChangedAt).To(BeNil())

			byEmail, err := repo.GetByEmail(suiteCtx, "READER@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(user.ID))
		})

		It("rejects a duplicate email ignoring case", func() {
			Expect(repo.Create(suiteCtx, newUser("dup@example.com"))).To(Succeed())

			other := newUser("dup@example.com")
			other.Email = "DUP@example.com"
			err := repo.Create(suiteCtx, other)
			Expect(err).To(MatchError(auth.ErrConflict))
		})
	})

	Describe("GetByID", func() {
		It("returns ErrNotFound for an unknown id", func() {
			_, err := repo.GetByID(suiteCtx, ulid.Make())
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("Update", func() {
		It("saves the password change time", func() {
			user := newUser("update@example.com")
			Expect(repo.Create(suiteCtx, user)).To(Succeed())

			user.SetPassword("$argon2id$new", now.Add(time.Minute))
			Expect(repo.Update(suiteCtx, user)).To(Succeed())

			got, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$new"))
			Expect(got.PasswordChangedAt).NotTo(BeNil())
		})
	})

	Describe("UpdatePasswordHash", func() {
		It("loses to a password change made after the read", func() {
			user := newUser("rehash@example.com")
			Expect(repo.Create(suiteCtx, user)).To(Succeed())
			stale, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.SetPasswordReset(suiteCtx, user.ID, "hash-rehash", now.Add(10*time.Minute))).To(Succeed())
			_, err = repo.RedeemPasswordReset(suiteCtx, "hash-rehash", "$argon2id$reset", now.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())

			swapped, err := repo.UpdatePasswordHash(suiteCtx, user.ID, stale.PasswordHash, "$argon2id$upgraded", now.Add(2*time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(swapped).To(BeFalse())

			got, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$reset"))
			Expect(got.PasswordChangedAt).NotTo(BeNil())
			Expect(*got.PasswordChangedAt).To(BeTemporally("==", now.Add(time.Second)))
		})
	})

	Describe("password reset", func() {
		var user *auth.User

		BeforeEach(func() {
			user = newUser("reset@example.com")
			Expect(repo.Create(suiteCtx, user)).To(Succeed())
			Expect(repo.SetPasswordReset(suiteCtx, user.ID, "hash-1", now.Add(10*time.Minute))).To(Succeed())
		})

		It("finds the user by an unexpired hash only", func() {
			got, err := repo.GetByResetTokenHash(suiteCtx, "hash-1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))

			_, err = repo.GetByResetTokenHash(suiteCtx, "hash-1", now.Add(10*time.Minute))
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("clears both fields together", func() {
			Expect(repo.ClearPasswordReset(suiteCtx, user.ID)).To(Succeed())

			got, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordResetTokenHash).To(BeNil())
			Expect(got.PasswordResetExpires).To(BeNil())
		})

		It("redeems a reset exactly once under concurrency", func() {
			const racers = 8
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				winners  int
				notFound int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := repo.RedeemPasswordReset(suiteCtx, "hash-1", "$argon2id$reset", now)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						winners++
						return
					}
					Expect(err).To(MatchError(auth.ErrNotFound))
					notFound++
				}()
			}
			wg.Wait()

			Expect(winners).To(Equal(1))
			Expect(notFound).To(Equal(racers - 1))

			got, err := repo.GetByID(suiteCtx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$reset"))
			Expect(got.PasswordResetTokenHash).To(BeNil())
			Expect(got.PasswordChangedAt).NotTo(BeNil())
		})
	})

	Describe("Delete", func() {
		It("removes the user", func() {
			user := newUser("delete@example.com")
			Expect(repo.Create(suiteCtx, user)).To(Succeed())
			Expect(repo.Delete(suiteCtx, user.ID)).To(Succeed())

			err := repo.Delete(suiteCtx, user.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})
})
