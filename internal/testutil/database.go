// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/models"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
// A single open connection serializes transactions the way a row lock would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.ConnectDatabase("sqlite", dsn)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.MigrateDatabase(gdb))

	return gdb
}

func CreateUser(t *testing.T, gdb *gorm.DB, name string) models.User {
	t.Helper()

	user := models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, gdb.Create(&user).Error)

	return user
}

// CreateProject creates a project owned by owner with the owner and the
// extra members recorded as memberships. The returned project has its
// memberships loaded.
func CreateProject(t *testing.T, gdb *gorm.DB, owner models.User, title string, members ...models.User) models.Project {
	t.Helper()

	project := models.Project{
		Title:   title,
		OwnerID: owner.ID,
		Memberships: []models.ProjectMembership{
			{UserID: owner.ID, Role: models.RoleOwner},
		},
	}
	for _, m := range members {
		project.Memberships = append(project.Memberships, models.ProjectMembership{UserID: m.ID, Role: models.RoleMember})
	}

	require.NoError(t, gdb.Create(&project).Error)

	return LoadProject(t, gdb, project.ID)
}

func LoadProject(t *testing.T, gdb *gorm.DB, id uint) models.Project {
	t.Helper()

	var project models.Project
	require.NoError(t, gdb.Preload("Memberships").First(&project, id).Error)

	return project
}
