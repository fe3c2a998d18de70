package service

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/models"
	appErrors "github.com/edufleet/central-api/pkg/errors"
	"github.com/edufleet/central-api/pkg/jobs"
)

// serialBase offsets course serials so they never collide with legacy
// hand-assigned numbers below 1000.
const serialBase = 1000

var versionTokenRe = regexp.MustCompile(`_v(\d)_`)

type courseStore interface {
	FindByName(ctx context.Context, name, shortname string) (*models.Course, error)
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	FindDetailByID(ctx context.Context, id int64) (*models.CourseDetail, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, course *models.Course) error
	CreateDetail(ctx context.Context, detail *models.CourseDetail) error
	DetailExists(ctx context.Context, filename string) (bool, error)
	ListDetails(ctx context.Context, source string) ([]models.CourseDetail, error)
}

type installSiteStore interface {
	FindByID(ctx context.Context, id int64) (*models.Site, error)
	ListInstallTargets(ctx context.Context) ([]models.InstallTarget, error)
}

type installQueue interface {
	Enqueue(job jobs.Job) error
}

// backupManifest mirrors the information block of a moodle_backup.xml file.
// Only the identifying fields are decoded; the rest of the manifest is
// ignored.
type backupManifest struct {
	XMLName     xml.Name `xml:"moodle_backup"`
	Information struct {
		OriginalCourseFullname  string `xml:"original_course_fullname"`
		OriginalCourseShortname string `xml:"original_course_shortname"`
		MoodleRelease           string `xml:"moodle_release"`
		OriginalCourseID        int64  `xml:"original_course_id"`
	} `xml:"information"`
}

// InstallJob is the payload carried by queued course install dispatches.
type InstallJob struct {
	SiteID    int64
	CourseIDs []int64
}

// ScanReport summarises one pass over the package directory.
type ScanReport struct {
	Scanned    int `json:"scanned"`
	Registered int `json:"registered"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// CourseService registers course packages found on disk and dispatches
// install requests to hosted sites over their install endpoint.
type CourseService struct {
	courses    courseStore
	sites      installSiteStore
	queue      installQueue
	httpClient *http.Client
	validator  *validator.Validate
	packageDir string
	installURL string
	logger     *zap.Logger
}

// CourseServiceParams groups constructor dependencies.
type CourseServiceParams struct {
	Courses        courseStore
	Sites          installSiteStore
	Queue          installQueue
	PackageDir     string
	InstallPath    string
	InstallTimeout time.Duration
	Logger         *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(params CourseServiceParams) *CourseService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := params.InstallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CourseService{
		courses:    params.Courses,
		sites:      params.Sites,
		queue:      params.Queue,
		httpClient: &http.Client{Timeout: timeout},
		validator:  validator.New(),
		packageDir: params.PackageDir,
		installURL: params.InstallPath,
		logger:     logger,
	}
}

// ScanPackages walks the package directory and registers every backup
// archive not yet in the catalog. Archives that cannot be opened or carry no
// readable manifest are counted and skipped, never fatal; a single corrupt
// upload should not block the rest of the scan.
func (s *CourseService) ScanPackages(ctx context.Context) (*ScanReport, error) {
	report := &ScanReport{}

	err := filepath.Walk(s.packageDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".zip") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++

		rel, err := filepath.Rel(s.packageDir, path)
		if err != nil {
			return err
		}
		exists, err := s.courses.DetailExists(ctx, info.Name())
		if err != nil {
			return err
		}
		if exists {
			report.Skipped++
			return nil
		}

		if err := s.registerPackage(ctx, path, rel, info); err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrStoreUnavailable.Code {
				return err
			}
			report.Failed++
			s.logger.Warn("skipping unreadable package",
				zap.String("file", rel), zap.Error(err))
			return nil
		}
		report.Registered++
		return nil
	})
	if err != nil {
		return report, err
	}

	s.logger.Info("package scan complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("registered", report.Registered),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *CourseService) registerPackage(ctx context.Context, path, rel string, info os.FileInfo) error {
	manifest, err := readManifest(path)
	if err != nil {
		return err
	}

	course, err := s.courses.FindByName(ctx, manifest.Information.OriginalCourseFullname, manifest.Information.OriginalCourseShortname)
	if err != nil {
		return err
	}
	if course == nil {
		count, err := s.courses.Count(ctx)
		if err != nil {
			return err
		}
		course = &models.Course{
			Serial:    int64(serialBase + count),
			Name:      manifest.Information.OriginalCourseFullname,
			Shortname: manifest.Information.OriginalCourseShortname,
			Source:    packageSource(rel),
		}
		if err := s.courses.Create(ctx, course); err != nil {
			return err
		}
	}

	detail := &models.CourseDetail{
		CourseID:       course.ID,
		Filename:       info.Name(),
		Version:        packageVersion(info.Name()),
		Updated:        info.ModTime().UTC(),
		Active:         true,
		MoodleVersion:  manifest.Information.MoodleRelease,
		MoodleCourseID: manifest.Information.OriginalCourseID,
	}
	return s.courses.CreateDetail(ctx, detail)
}

// readManifest opens the archive and decodes its moodle_backup.xml entry.
func readManifest(path string) (*backupManifest, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "open package archive")
	}
	defer archive.Close()

	for _, f := range archive.File {
		if filepath.Base(f.Name) != "moodle_backup.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "open package manifest")
		}
		defer rc.Close()

		var manifest backupManifest
		if err := xml.NewDecoder(rc).Decode(&manifest); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "decode package manifest")
		}
		if manifest.Information.OriginalCourseFullname == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "manifest missing course name")
		}
		return &manifest, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "package has no manifest")
}

// packageSource is the first path component under the package directory,
// identifying which upstream collection the archive came from. Archives at
// the root belong to no collection.
func packageSource(rel string) string {
	rel = filepath.ToSlash(rel)
	if idx := strings.Index(rel, "/"); idx > 0 {
		return rel[:idx]
	}
	return ""
}

// packageVersion extracts the _vN_ token filenames carry when a course has
// been repackaged.
func packageVersion(filename string) *string {
	m := versionTokenRe.FindStringSubmatch(filename)
	if m == nil {
		return nil
	}
	return &m[1]
}

// ListTargets returns the sites eligible for remote course installs.
func (s *CourseService) ListTargets(ctx context.Context) ([]models.InstallTarget, error) {
	return s.sites.ListInstallTargets(ctx)
}

// ListDetails returns registered packages, optionally filtered by source
// collection.
func (s *CourseService) ListDetails(ctx context.Context, source string) ([]models.CourseDetail, error) {
	return s.courses.ListDetails(ctx, source)
}

// InstallCourses validates the request and queues one install job per site.
// Dispatch happens in the background; the returned ids identify the queued
// jobs.
func (s *CourseService) InstallCourses(ctx context.Context, siteIDs, courseIDs []int64) ([]string, error) {
	if err := s.validator.Var(siteIDs, "required,min=1,dive,gt=0"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "site_ids must list at least one valid site")
	}
	if err := s.validator.Var(courseIDs, "required,min=1,dive,gt=0"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course_ids must list at least one valid package")
	}
	for _, id := range courseIDs {
		detail, err := s.courses.FindDetailByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if detail == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course package %d not found", id))
		}
	}

	jobIDs := make([]string, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		site, err := s.sites.FindByID(ctx, siteID)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("site %d not found", siteID))
		}

		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    "course.install",
			Payload: InstallJob{SiteID: siteID, CourseIDs: courseIDs},
		}
		if err := s.queue.Enqueue(job); err != nil {
			return jobIDs, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue install job")
		}
		jobIDs = append(jobIDs, job.ID)
	}
	return jobIDs, nil
}

// HandleInstallJob is the queue handler for course.install jobs. It posts
// one install form per course to the site's install endpoint.
func (s *CourseService) HandleInstallJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(InstallJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	site, err := s.sites.FindByID(ctx, payload.SiteID)
	if err != nil {
		return err
	}
	if site == nil {
		return fmt.Errorf("site %d disappeared before dispatch", payload.SiteID)
	}

	for _, courseID := range payload.CourseIDs {
		detail, err := s.courses.FindDetailByID(ctx, courseID)
		if err != nil {
			return err
		}
		if detail == nil {
			s.logger.Warn("install skipping missing package", zap.Int64("course_id", courseID))
			continue
		}
		course, err := s.courses.FindByID(ctx, detail.CourseID)
		if err != nil {
			return err
		}
		if course == nil {
			s.logger.Warn("install skipping orphan package", zap.Int64("course_id", courseID))
			continue
		}
		if err := s.dispatchInstall(ctx, site, course, detail); err != nil {
			return err
		}
		s.logger.Info("course install dispatched",
			zap.String("site", site.BaseURL),
			zap.String("course", course.Shortname),
			zap.String("file", detail.Filename))
	}
	return nil
}

func (s *CourseService) dispatchInstall(ctx context.Context, site *models.Site, course *models.Course, detail *models.CourseDetail) error {
	form := url.Values{}
	form.Set("filepath", packagePath(s.packageDir, course.Source))
	form.Set("file", detail.Filename)
	form.Set("courseid", fmt.Sprintf("%d", detail.MoodleCourseID))
	form.Set("coursename", course.Name)
	form.Set("shortname", course.Shortname)
	form.Set("category", course.Category)

	endpoint := "https://" + site.BaseURL + s.installURL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSourceUnreachable.Code, appErrors.ErrSourceUnreachable.Status, fmt.Sprintf("install dispatch to %s", site.BaseURL))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return appErrors.Clone(appErrors.ErrSourceUnreachable,
			fmt.Sprintf("install endpoint %s returned %d", site.BaseURL, resp.StatusCode))
	}
	return nil
}

func packagePath(dir, source string) string {
	if source == "" {
		return dir
	}
	return filepath.Join(dir, source)
}
