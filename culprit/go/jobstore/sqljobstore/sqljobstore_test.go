package sqljobstore

import (
	"fmt"
	"strings"
	"testing"

	"go.skia.org/culprit/culprit/go/jobstore/jobstoretest"
	"go.skia.org/culprit/go/sql/pool/wrapper/timeout"
	"go.skia.org/culprit/go/sql/sqltest"
)

func TestStore_CockroachDB(t *testing.T) {
	for name, subTest := range jobstoretest.SubTests {
		t.Run(name, func(t *testing.T) {
			db := sqltest.NewCockroachDBForTests(t, fmt.Sprintf("jobstore_%s", strings.ToLower(name)), Schema)
			subTest(t, New(timeout.New(db)))
		})
	}
}
