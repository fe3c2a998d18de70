package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufleet/central-api/internal/models"
)

func baseRow() map[string]interface{} {
	return map[string]interface{}{
		"sitename":   "Example High",
		"sitetype":   "moodle",
		"baseurl":    "https://ex.district5.org",
		"basepath":   "/",
		"totalusers": int64(100),
		"adminusers": int64(5),
		"teachers":   int64(10),
	}
}

func TestNormalizeStripsScheme(t *testing.T) {
	rec, err := Normalize(baseRow())
	require.NoError(t, err)
	assert.Equal(t, "ex.district5.org", rec.BaseURL)

	row := baseRow()
	row["baseurl"] = "http://plain.example.org"
	rec, err = Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "plain.example.org", rec.BaseURL)
}

func TestNormalizeRequiresNameAndBaseURL(t *testing.T) {
	row := baseRow()
	row["sitename"] = ""
	_, err := Normalize(row)
	assert.Error(t, err)

	row = baseRow()
	delete(row, "baseurl")
	_, err = Normalize(row)
	assert.Error(t, err)
}

func TestNormalizeRejectsUnknownSiteType(t *testing.T) {
	row := baseRow()
	row["sitetype"] = "wordpress"
	_, err := Normalize(row)
	assert.Error(t, err)

	row["sitetype"] = "drupal"
	rec, err := Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, models.SiteTypeDrupal, rec.SiteType)
}

func TestNormalizeLocationHint(t *testing.T) {
	row := baseRow()
	row["location"] = "php04.host.example.org"
	rec, err := Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, models.SiteLocationPlatform, rec.Location)

	row["location"] = "aws-east"
	rec, err = Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, models.SiteLocationUnknown, rec.Location)

	delete(row, "location")
	rec, err = Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, models.SiteLocationUnknown, rec.Location)
}

func TestNormalizeSniffsCoursesPayload(t *testing.T) {
	row := baseRow()
	row["courses"] = `[{"shortname":"alg1"}]`
	rec, err := Normalize(row)
	require.NoError(t, err)
	require.NotNil(t, rec.CoursesRaw)
	assert.Equal(t, `[{"shortname":"alg1"}]`, *rec.CoursesRaw)

	// Anything that is not an array of objects is dropped, not an error.
	row["courses"] = `{"shortname":"alg1"}`
	rec, err = Normalize(row)
	require.NoError(t, err)
	assert.Nil(t, rec.CoursesRaw)

	delete(row, "courses")
	rec, err = Normalize(row)
	require.NoError(t, err)
	assert.Nil(t, rec.CoursesRaw)
}

func TestNormalizeCoercesDriverBytes(t *testing.T) {
	row := baseRow()
	row["sitename"] = []byte("Byte School")
	row["baseurl"] = []byte("https://bytes.example.org")
	row["totalusers"] = []byte("42")
	rec, err := Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "Byte School", rec.SiteName)
	assert.Equal(t, "bytes.example.org", rec.BaseURL)
	assert.Equal(t, 42, rec.TotalUsers)
}

func TestSourceNameStripsCredentials(t *testing.T) {
	src := NewSource("reporter:hunter2@tcp(telemetry.example.org:3306)/stats", 0, nil)
	assert.Equal(t, "tcp(telemetry.example.org:3306)/stats", src.Name())
}
