package telemetry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edufleet/central-api/internal/models"
)

var schemeRe = regexp.MustCompile(`^http[s]?://`)

// Normalize converts one raw siteinfo row into a Record. It returns an error
// for rows missing the fields reconciliation cannot work without; such rows
// are dropped and counted, never fatal for the batch.
func Normalize(row map[string]interface{}) (Record, error) {
	siteName := stringField(row, "sitename")
	baseURL := schemeRe.ReplaceAllString(stringField(row, "baseurl"), "")

	if siteName == "" || baseURL == "" {
		return Record{}, fmt.Errorf("row missing sitename or baseurl")
	}

	siteType := models.SiteType(strings.ToLower(stringField(row, "sitetype")))
	if siteType != models.SiteTypeMoodle && siteType != models.SiteTypeDrupal {
		return Record{}, fmt.Errorf("unknown sitetype %q", siteType)
	}

	rec := Record{
		SiteName:     siteName,
		SiteType:     siteType,
		BaseURL:      baseURL,
		BasePath:     stringField(row, "basepath"),
		SiteVersion:  stringField(row, "siteversion"),
		SiteRelease:  stringField(row, "siterelease"),
		AdminEmail:   stringField(row, "adminemail"),
		TotalUsers:   intField(row, "totalusers"),
		AdminUsers:   intField(row, "adminusers"),
		Teachers:     intField(row, "teachers"),
		ActiveUsers:  intField(row, "activeusers"),
		TotalCourses: intField(row, "totalcourses"),
		Location:     classifyLocation(row),
		CoursesRaw:   sniffCourses(stringField(row, "courses")),
	}

	return rec, nil
}

// classifyLocation derives the deployment-host class from the location hint.
// Sites on the hosting platform report a hint starting with "php"; anything
// else, including an absent hint column, is unknown.
func classifyLocation(row map[string]interface{}) models.SiteLocation {
	hint, ok := row["location"]
	if !ok || hint == nil {
		return models.SiteLocationUnknown
	}
	if strings.HasPrefix(coerceString(hint), "php") {
		return models.SiteLocationPlatform
	}
	return models.SiteLocationUnknown
}

// sniffCourses accepts the payload only when it looks like a JSON array of
// objects. Malformed payloads are silently dropped rather than persisted,
// keeping garbage out of the catalog.
func sniffCourses(raw string) *string {
	if len(raw) < 2 || raw[:2] != "[{" {
		return nil
	}
	return &raw
}

func stringField(row map[string]interface{}, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	return coerceString(v)
}

func intField(row map[string]interface{}, key string) int {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		parsed, err := strconv.Atoi(coerceString(v))
		if err != nil {
			return 0
		}
		return parsed
	}
}

// coerceString handles the driver returning either string or []byte for text
// columns depending on the source server's settings.
func coerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
