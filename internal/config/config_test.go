package config

import "testing"

func TestConnectionString(t *testing.T) {
	c := DefaultConfig()
	c.DBHost = "db.example.com"
	c.DBPort = 5433
	c.DBName = "gis"
	c.DBUser = "osm"

	got := c.ConnectionString()
	want := "host=db.example.com port=5433 dbname=gis user=osm sslmode=disable"
	if got != want {
		t.Errorf("ConnectionString = %q, want %q", got, want)
	}

	c.DBPassword = "secret"
	if got := c.ConnectionString(); got != want+" password=secret" {
		t.Errorf("ConnectionString with password = %q", got)
	}
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	c.Workers = 0
	if err := c.Validate(); err == nil {
		t.Error("zero workers accepted")
	}

	c = DefaultConfig()
	c.DBName = ""
	if err := c.Validate(); err == nil {
		t.Error("neither source file nor database accepted")
	}
	c.SourceFile = "extract.osm"
	if err := c.Validate(); err != nil {
		t.Errorf("source file alone should be enough: %v", err)
	}
}
