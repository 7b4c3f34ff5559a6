package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AttributionRun is one persisted correlation run.
type AttributionRun struct {
	CreatedAt       time.Time           `json:"CreatedAt" gorm:"autoCreateTime"`
	UpdatedAt       time.Time           `json:"UpdatedAt" gorm:"autoUpdateTime"`
	RunID           string              `json:"RunID" gorm:"not null;uniqueIndex"`
	Product         string              `json:"Product" gorm:"not null"`
	Project         string              `json:"Project"`
	Summaries       []RepositorySummary `json:"Summaries" gorm:"foreignKey:AttributionRunID;constraint:OnDelete:CASCADE"`
	ID              uint                `json:"ID" gorm:"primaryKey;autoIncrement"`
	RepositoryCount int                 `json:"RepositoryCount"`
	BuildCount      int                 `json:"BuildCount"`
	MatchedCount    int                 `json:"MatchedCount"`
	UnmappedCount   int                 `json:"UnmappedCount"`
	DroppedCount    int                 `json:"DroppedCount"`
}

// RepositorySummary is one repository's aggregated outcome within a run.
type RepositorySummary struct {
	Name             string           `json:"Name" gorm:"not null" index:"idx_repository_name"`
	PublishType      string           `json:"PublishType"`
	Builds           JSONStringArray  `json:"Builds" gorm:"type:text"`
	Artifacts        []ArtifactRecord `json:"Artifacts" gorm:"foreignKey:RepositorySummaryID;constraint:OnDelete:CASCADE"`
	ID               uint             `json:"ID" gorm:"primaryKey;autoIncrement"`
	AttributionRunID uint             `json:"AttributionRunID" gorm:"index"`
	Critical         int              `json:"Critical"`
	High             int              `json:"High"`
	Medium           int              `json:"Medium"`
	Low              int              `json:"Low"`
	Unknown          int              `json:"Unknown"`
}

// ArtifactRecord is one deployed artifact attributed to a repository.
type ArtifactRecord struct {
	Key                 string `json:"Key" gorm:"not null"`
	BuildName           string `json:"BuildName"`
	BuildNumber         string `json:"BuildNumber"`
	BuildTimestamp      string `json:"BuildTimestamp"`
	SHA256              string `json:"SHA256"`
	ID                  uint   `json:"ID" gorm:"primaryKey;autoIncrement"`
	RepositorySummaryID uint   `json:"RepositorySummaryID" gorm:"index"`
	Critical            int    `json:"Critical"`
	High                int    `json:"High"`
	Medium              int    `json:"Medium"`
	Low                 int    `json:"Low"`
	Unknown             int    `json:"Unknown"`
	IsLatest            bool   `json:"IsLatest"`
}

// JSONStringArray custom type for handling JSON serialization of string arrays.
type JSONStringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (j JSONStringArray) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil // Return nil if the array is empty
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (j *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("JSONStringArray Scan error: expected []byte, got %T", value)
	}
}
