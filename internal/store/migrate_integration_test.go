// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/finlife/identity/internal/store"
	"github.com/finlife/identity/internal/store/postgrestest"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx      context.Context
		db       *postgrestest.Database
		migrator *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		db, err = postgrestest.Start(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(db.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if db != nil {
			db.Close(ctx)
		}
	})

	It("reports every migration applied after start", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Pending).To(BeEmpty())
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Applied).To(Equal([]uint{1, 2}))
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(1)))

		var exists bool
		err = db.Pool.QueryRow(ctx, `SELECT to_regclass('revoked_tokens') IS NOT NULL`).Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		Expect(migrator.Steps(1)).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(2)))
	})

	It("enforces case-insensitive email uniqueness", func() {
		_, err := db.Pool.Exec(ctx, `INSERT INTO principals (id, email, password_hash) VALUES ('a', 'Ana@x.example', 'h')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.Pool.Exec(ctx, `INSERT INTO principals (id, email, password_hash) VALUES ('b', 'ana@X.example', 'h')`)
		Expect(store.IsUniqueViolation(err)).To(BeTrue())
		Expect(db.Truncate(ctx)).To(Succeed())
	})

	It("drops everything on down and restores on up", func() {
		Expect(migrator.Down()).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(2)))
	})
})
