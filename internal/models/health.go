package models

import (
	"fmt"
	"time"
)

// ActivityLevel describes how recently a repository has seen commits.
type ActivityLevel string

const (
	ActivityActive    ActivityLevel = "active"
	ActivityModerate  ActivityLevel = "moderate"
	ActivityStale     ActivityLevel = "stale"
	ActivityAbandoned ActivityLevel = "abandoned"
)

func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivityActive, ActivityModerate, ActivityStale, ActivityAbandoned:
		return true
	}
	return false
}

// TestCoverage describes the observed test posture.
type TestCoverage string

const (
	CoverageGood    TestCoverage = "good"
	CoveragePartial TestCoverage = "partial"
	CoverageNone    TestCoverage = "none"
	CoverageUnknown TestCoverage = "unknown"
)

func (c TestCoverage) Valid() bool {
	switch c {
	case CoverageGood, CoveragePartial, CoverageNone, CoverageUnknown:
		return true
	}
	return false
}

// DocQuality describes documentation completeness.
type DocQuality string

const (
	DocsExcellent DocQuality = "excellent"
	DocsGood      DocQuality = "good"
	DocsBasic     DocQuality = "basic"
	DocsPoor      DocQuality = "poor"
)

func (d DocQuality) Valid() bool {
	switch d {
	case DocsExcellent, DocsGood, DocsBasic, DocsPoor:
		return true
	}
	return false
}

// CIStatus indicates whether CI/CD configuration was found.
type CIStatus string

const (
	CIConfigured CIStatus = "configured"
	CIMissing    CIStatus = "missing"
)

func (s CIStatus) Valid() bool { return s == CIConfigured || s == CIMissing }

// DependencyStatus describes dependency freshness.
type DependencyStatus string

const (
	DepsCurrent  DependencyStatus = "current"
	DepsOutdated DependencyStatus = "outdated"
	DepsUnknown  DependencyStatus = "unknown"
)

func (s DependencyStatus) Valid() bool {
	switch s {
	case DepsCurrent, DepsOutdated, DepsUnknown:
		return true
	}
	return false
}

// HealthSnapshot is a repository health assessment. Enum fields are always
// from their fixed vocabulary and the score always lies in [0,1]; Validate
// enforces both before a snapshot is accepted from generated output.
type HealthSnapshot struct {
	ActivityLevel      ActivityLevel    `json:"activity_level"`
	TestCoverage       TestCoverage     `json:"test_coverage"`
	DocQuality         DocQuality       `json:"documentation_quality"`
	CIStatus           CIStatus         `json:"ci_cd_status"`
	DependencyStatus   DependencyStatus `json:"dependency_status"`
	OverallHealthScore float64          `json:"overall_health_score"`
	Issues             []string         `json:"issues_identified"`
}

// Validate checks health snapshot data integrity.
func (h *HealthSnapshot) Validate() error {
	if !h.ActivityLevel.Valid() {
		return fmt.Errorf("invalid activity_level: %q", h.ActivityLevel)
	}
	if !h.TestCoverage.Valid() {
		return fmt.Errorf("invalid test_coverage: %q", h.TestCoverage)
	}
	if !h.DocQuality.Valid() {
		return fmt.Errorf("invalid documentation_quality: %q", h.DocQuality)
	}
	if !h.CIStatus.Valid() {
		return fmt.Errorf("invalid ci_cd_status: %q", h.CIStatus)
	}
	if !h.DependencyStatus.Valid() {
		return fmt.Errorf("invalid dependency_status: %q", h.DependencyStatus)
	}
	if h.OverallHealthScore < 0.0 || h.OverallHealthScore > 1.0 {
		return fmt.Errorf("overall_health_score must be between 0.0 and 1.0, got %v", h.OverallHealthScore)
	}
	return nil
}

// RepositoryProfile is a compact repository summary persisted between runs.
type RepositoryProfile struct {
	Repository      Repository     `json:"repository"`
	Purpose         string         `json:"purpose"`
	TechStack       []string       `json:"tech_stack"`
	KeyFiles        []string       `json:"key_files"`
	Health          HealthSnapshot `json:"health"`
	LastAnalyzed    time.Time      `json:"last_analyzed"`
	AnalysisVersion string         `json:"analysis_version"`
}

// Validate checks profile data integrity.
func (p *RepositoryProfile) Validate() error {
	if err := p.Repository.Validate(); err != nil {
		return err
	}
	if err := p.Health.Validate(); err != nil {
		return err
	}
	if p.Purpose == "" {
		return fmt.Errorf("purpose cannot be empty")
	}
	if p.AnalysisVersion == "" {
		return fmt.Errorf("analysis_version cannot be empty")
	}
	return nil
}
