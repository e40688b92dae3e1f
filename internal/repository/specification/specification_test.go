package specification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type row struct {
	ID        string
	SessionID string
	Status    string
}

// dryRun builds SQL without a live connection.
func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Skipf("postgres dialector unavailable: %v", err)
	}
	return db
}

func TestSpecificationsBuildSQL(t *testing.T) {
	db := dryRun(t)

	specs := []Specification{
		BySessionID{SessionID: "sess-1"},
		ByStatuses{Statuses: []string{"active", "superseded"}},
		OrderBy{Field: "created_at", Desc: true},
		Limit{N: 5},
	}
	q := db.Model(&row{})
	for _, s := range specs {
		q = s.Apply(q)
	}
	stmt := q.Find(&[]row{}).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "session_id = $1")
	assert.Contains(t, sql, "status IN ($2,$3)")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT")
	assert.Equal(t, []interface{}{"sess-1", "active", "superseded"}, stmt.Vars[:3])
}

func TestEmptyFiltersAreNoops(t *testing.T) {
	db := dryRun(t)

	q := ByStatuses{}.Apply(db.Model(&row{}))
	q = Limit{}.Apply(q)
	sql := q.Find(&[]row{}).Statement.SQL.String()

	assert.NotContains(t, sql, "status IN")
	assert.NotContains(t, sql, "LIMIT")
}
