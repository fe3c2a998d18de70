package models

import "time"

// Course is a canonical catalog entry shared by every packaged version of the
// same course. Serial identifies the course across versions.
type Course struct {
	ID        int64     `db:"id" json:"id"`
	Serial    int64     `db:"serial" json:"serial"`
	Name      string    `db:"name" json:"name"`
	Shortname string    `db:"shortname" json:"shortname"`
	License   *string   `db:"license" json:"license,omitempty"`
	Category  string    `db:"category" json:"category"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail describes one packaged archive of a course.
type CourseDetail struct {
	ID             int64     `db:"id" json:"id"`
	CourseID       int64     `db:"course_id" json:"course_id"`
	Filename       string    `db:"filename" json:"filename"`
	Version        *string   `db:"version" json:"version,omitempty"`
	Updated        time.Time `db:"updated" json:"updated"`
	Active         bool      `db:"active" json:"active"`
	MoodleVersion  string    `db:"moodle_version" json:"moodle_version"`
	MoodleCourseID int64     `db:"moodle_course_id" json:"moodle_course_id"`
}
