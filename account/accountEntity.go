package account

import (
	"sqlreview/authority"

	"github.com/fundwit/go-commons/types"
)

type User struct {
	ID     types.ID `json:"id"`
	Name   string   `json:"name" gorm:"unique_index"`
	Secret string   `json:"secret"`

	Nickname string `json:"nickname"`
	Email    string `json:"email"`
}

type UserInfo struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
	Email    string   `json:"email"`
}

type BasicAuthUpdating struct {
	OriginalSecret string `json:"originalSecret"`
	NewSecret      string `json:"newSecret" binding:"required,gte=6,lte=32"`
}

type UserCreation struct {
	Name     string `json:"name" binding:"required,lte=32"`
	Secret   string `json:"secret" binding:"required,gte=6,lte=32"`
	Nickname string `json:"nickname" binding:"omitempty,gte=1,lte=32"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type UserUpdation struct {
	Nickname string `json:"nickname" binding:"required,lte=32"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type Role struct {
	ID    string `json:"id" gorm:"primary_key"`
	Title string `json:"title"`
}

type Permission struct {
	ID    string `json:"id" gorm:"primary_key"`
	Title string `json:"title"`
}

type UserRoleBinding struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	UserID types.ID `json:"userId" gorm:"unique_index:uni_user_role"`
	RoleID string   `json:"roleId" gorm:"unique_index:uni_user_role"`
}

type RolePermissionBinding struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	RoleID       string `json:"roleId" gorm:"unique_index:uni_role_perm"`
	PermissionID string `json:"permissionId" gorm:"unique_index:uni_role_perm"`
}

// UserAuthGroup places a user into a review group, e.g. "dba".
type UserAuthGroup struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	UserID    types.ID `json:"userId" gorm:"unique_index:uni_user_auth_group"`
	AuthGroup string   `json:"authGroup" gorm:"unique_index:uni_user_auth_group"`
}

// UserResourceGroup makes a user member of a resource group.
type UserResourceGroup struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	UserID          types.ID `json:"userId" gorm:"unique_index:uni_user_resource_group"`
	ResourceGroupID types.ID `json:"resourceGroupId" gorm:"unique_index:uni_user_resource_group"`
}

// Grants is everything a session carries about what its user may do.
type Grants struct {
	Perms          authority.Permissions    `json:"perms"`
	AuthGroups     authority.AuthGroups     `json:"authGroups"`
	ResourceGroups authority.ResourceGroups `json:"resourceGroups"`
}

type GrantsUpdating struct {
	Roles          []string   `json:"roles"`
	AuthGroups     []string   `json:"authGroups"`
	ResourceGroups []types.ID `json:"resourceGroups"`
}

func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

func (u UserInfo) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}
