package account

import (
	"context"
	"errors"
	"os"
	"sqlreview/authority"
	"sqlreview/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	RoleSuperuser          = Role{ID: "superuser", Title: "Superuser"}
	RoleSqlSubmitter       = Role{ID: "sql-submitter", Title: "SQL Submitter"}
	RoleSqlReviewer        = Role{ID: "sql-reviewer", Title: "SQL Reviewer"}
	RoleSqlExecutor        = Role{ID: "sql-executor", Title: "SQL Executor"}
	RoleSqlGroupExecutor   = Role{ID: "sql-group-executor", Title: "SQL Executor of Resource Groups"}
	builtinRolePermissions = []struct {
		role  Role
		perms []Permission
	}{
		{RoleSuperuser, []Permission{{ID: authority.PermSuperuser, Title: "System Administration"}}},
		{RoleSqlSubmitter, []Permission{{ID: authority.PermSqlSubmit, Title: "Submit SQL Workflows"}}},
		{RoleSqlReviewer, []Permission{{ID: authority.PermSqlReview, Title: "Review SQL Workflows"}}},
		{RoleSqlExecutor, []Permission{{ID: authority.PermSqlExecute, Title: "Execute Own SQL Workflows"}}},
		{RoleSqlGroupExecutor, []Permission{{ID: authority.PermSqlExecuteForResourceGroup, Title: "Execute SQL Workflows of Resource Groups"}}},
	}

	errUnknownRole = errors.New("unknown role")

	LoadGrantsFunc = LoadGrants
)

const defaultAdminPassword = "admin123"

// DefaultSecurityConfiguration seeds the builtin roles and the initial superuser 'admin'.
// It is safe to run on every start.
func DefaultSecurityConfiguration() error {
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	return db.Transaction(func(tx *gorm.DB) error {
		for i, b := range builtinRolePermissions {
			role := b.role
			if err := tx.Save(&role).Error; err != nil {
				return err
			}
			for j, p := range b.perms {
				perm := p
				if err := tx.Save(&perm).Error; err != nil {
					return err
				}
				binding := RolePermissionBinding{ID: types.ID(i*10 + j + 1), RoleID: role.ID, PermissionID: perm.ID}
				if err := tx.Save(&binding).Error; err != nil {
					return err
				}
			}
		}

		admin := User{}
		err := tx.Where(&User{ID: 1}).First(&admin).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			password := os.Getenv("INITIAL_ADMIN_PASSWORD")
			if password == "" {
				password = defaultAdminPassword
				logrus.Warn("INITIAL_ADMIN_PASSWORD is not set, the default password is used for user admin")
			}
			if err := tx.Create(&User{ID: 1, Name: "admin", Secret: HashSha256(password)}).Error; err != nil {
				return err
			}
		}
		return tx.Save(&UserRoleBinding{ID: 1, UserID: 1, RoleID: RoleSuperuser.ID}).Error
	})
}

// LoadGrants collects the permissions of the user's roles, and the groups the user belongs to.
func LoadGrants(ctx context.Context, uid types.ID) (*Grants, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	grants := &Grants{Perms: authority.Permissions{}, AuthGroups: authority.AuthGroups{}, ResourceGroups: authority.ResourceGroups{}}

	var roles []string
	if err := db.Model(&UserRoleBinding{}).Where(&UserRoleBinding{UserID: uid}).Pluck("role_id", &roles).Error; err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		var perms []string
		if err := db.Model(&RolePermissionBinding{}).Where("role_id IN (?)", roles).
			Order("permission_id ASC").Pluck("DISTINCT(permission_id)", &perms).Error; err != nil {
			return nil, err
		}
		grants.Perms = append(grants.Perms, perms...)
	}

	var groups []string
	if err := db.Model(&UserAuthGroup{}).Where(&UserAuthGroup{UserID: uid}).Order("auth_group ASC").Pluck("auth_group", &groups).Error; err != nil {
		return nil, err
	}
	grants.AuthGroups = append(grants.AuthGroups, groups...)

	var resourceGroups []types.ID
	if err := db.Model(&UserResourceGroup{}).Where(&UserResourceGroup{UserID: uid}).
		Order("resource_group_id ASC").Pluck("resource_group_id", &resourceGroups).Error; err != nil {
		return nil, err
	}
	grants.ResourceGroups = append(grants.ResourceGroups, resourceGroups...)
	return grants, nil
}
