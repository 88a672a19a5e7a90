package core

import (
	"errors"
	"strings"
)

// ParseNamespace parses a namespace string into a Namespace.
//
// The namespace string must contain at least one ".", the first of which is the separator
// between the database and collection names.
func ParseNamespace(fullName string) (Namespace, error) {
	index := strings.Index(fullName, ".")
	if index == -1 {
		return Namespace{}, errors.New("namespace must contain a '.'")
	}

	return NewNamespace(fullName[:index], fullName[index+1:])
}

// NewNamespace creates a Namespace from the given database and collection names.
//
// Neither name can be empty, and the database name may not contain a "." or " "
// character.
func NewNamespace(databaseName string, collectionName string) (Namespace, error) {
	ns := Namespace{databaseName: databaseName, collectionName: collectionName}
	return ns, ns.validate()
}

// Namespace identifies a collection within a database.
type Namespace struct {
	databaseName   string
	collectionName string
}

// DatabaseName returns the name of the database.
func (ns Namespace) DatabaseName() string {
	return ns.databaseName
}

// CollectionName returns the name of the collection.
func (ns Namespace) CollectionName() string {
	return ns.collectionName
}

// FullName returns the full namespace string, which is the result of joining the database
// name and the collection name with a "." character.
func (ns Namespace) FullName() string {
	return ns.databaseName + "." + ns.collectionName
}

func (ns Namespace) validate() error {
	if ns.collectionName == "" {
		return errors.New("collection name can not be empty")
	}
	if ns.databaseName == "" {
		return errors.New("database name can not be empty")
	}
	if strings.ContainsAny(ns.databaseName, ". ") {
		return errors.New("database name can not contain '.' or ' '")
	}

	return nil
}
