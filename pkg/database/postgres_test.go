package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/uc-timetable-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "timetable", Password: "s3cret", Name: "uc_timetable", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=timetable password=s3cret dbname=uc_timetable sslmode=disable", DSN(cfg))

	cfg.Password = `it's a pass\word`
	cfg.SSLMode = ""
	assert.Equal(t, `host=db port=5432 user=timetable password='it\'s a pass\\word' dbname=uc_timetable`, DSN(cfg))
}
