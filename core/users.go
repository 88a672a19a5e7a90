package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/colemancda/MongoKitten/conn"
	"github.com/colemancda/MongoKitten/internal"
)

// Role grants a user a role, optionally scoped to another database.
type Role struct {
	Role string `bson:"role"`
	DB   string `bson:"db,omitempty"`
}

// CreateUser creates a user on a database. The password travels in
// the clear inside the command; the server derives and stores the
// credential material.
func CreateUser(ctx context.Context, c conn.Connection, db, username, password string, roles []Role) error {
	roleValues := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		if role.DB == "" {
			roleValues = append(roleValues, role.Role)
			continue
		}
		roleValues = append(roleValues, role)
	}

	createUserCmd := bson.D{
		{Key: "createUser", Value: username},
		{Key: "pwd", Value: password},
		{Key: "roles", Value: roleValues},
	}

	err := runCommand(ctx, c, db, createUserCmd, nil)
	if err != nil {
		return internal.WrapError(err, "failed to execute createUser")
	}
	return nil
}

// UserInfo describes one user as reported by usersInfo.
type UserInfo struct {
	ID         string           `bson:"_id"`
	UserID     primitive.Binary `bson:"userId"`
	User       string           `bson:"user"`
	DB         string           `bson:"db"`
	Roles      []Role           `bson:"roles"`
	Mechanisms []string         `bson:"mechanisms"`
}

// UsersInfo returns the users of a database, or a single user when
// username is not empty.
func UsersInfo(ctx context.Context, c conn.Connection, db, username string) ([]UserInfo, error) {
	var target interface{} = 1
	if username != "" {
		target = username
	}

	var result struct {
		Users []UserInfo `bson:"users"`
	}
	err := runCommand(ctx, c, db, bson.D{{Key: "usersInfo", Value: target}}, &result)
	if err != nil {
		return nil, internal.WrapError(err, "failed to execute usersInfo")
	}

	return result.Users, nil
}
