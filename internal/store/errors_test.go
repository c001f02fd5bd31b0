package store_test

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/store"
)

var _ = Describe("unique violations", func() {
	It("recognizes a wrapped 23505", func() {
		err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
		Expect(store.IsUniqueViolation(err)).To(BeTrue())
	})

	It("ignores other errors", func() {
		Expect(store.IsUniqueViolation(&pgconn.PgError{Code: "23503"})).To(BeFalse())
		Expect(store.IsUniqueViolation(errors.New("boom"))).To(BeFalse())
	})
})
