package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Project is a construction project orders are raised against.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	Name        string     `bun:"name,notnull"`
	Code        string     `bun:"code,notnull,unique"`
	Description *string    `bun:"description"`
	Phase       string     `bun:"phase,notnull"`
	Location    *string    `bun:"location"`
	StartDate   *time.Time `bun:"start_date,type:date"`
	EndDate     *time.Time `bun:"end_date,type:date"`
	IsActive    bool       `bun:"is_active,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	DeletedAt   *time.Time `bun:"deleted_at"`
}

// UserProject assigns a user to a project.
type UserProject struct {
	bun.BaseModel `bun:"table:user_projects,alias:up"`

	UserID    uuid.UUID `bun:"user_id,pk,type:uuid"`
	ProjectID uuid.UUID `bun:"project_id,pk,type:uuid"`
}

// User is an account able to act on projects.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	Username  string     `bun:"username,notnull,unique"`
	FullName  string     `bun:"full_name,notnull"`
	Role      string     `bun:"role,notnull"`
	IsActive  bool       `bun:"is_active,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `bun:"deleted_at"`
}

// Material is an entry of the material catalog.
type Material struct {
	bun.BaseModel `bun:"table:material_catalog,alias:m"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	SKU           string    `bun:"sku,notnull,unique"`
	Name          string    `bun:"name,notnull"`
	Category      string    `bun:"category,notnull"`
	UnitOfMeasure string    `bun:"unit_of_measure,notnull"`
	PhaseHint     *string   `bun:"phase_hint"`
	IsActive      bool      `bun:"is_active,notnull"`
}
