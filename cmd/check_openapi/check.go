package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const errorResponseRef = "#/components/responses/Error"

type openAPIDoc struct {
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type operation struct {
	Summary   string                    `yaml:"summary"`
	Responses map[string]responseObject `yaml:"responses"`
}

type responseObject struct {
	Ref string `yaml:"$ref"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]propertyShape
}

type propertyShape struct {
	Type     string
	ItemsRef string
}

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"patch": true, "head": true, "options": true,
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw, path)
}

func parseDoc(raw []byte, name string) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc, nil
}

// check validates both documents and compares the error envelope
// properties they share.
func check(portalDoc, authDoc openAPIDoc) error {
	portalErr, err := getSchema(portalDoc, "ErrorResponse")
	if err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	authErr, err := getSchema(authDoc, "ErrorResponse")
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := validateErrorResponse("portal", portalErr); err != nil {
		return err
	}
	if err := validateErrorResponse("auth", authErr); err != nil {
		return err
	}
	if prop, ok := portalErr.Properties["fields"]; !ok || prop.Type != "object" {
		return errors.New("portal ErrorResponse.fields must be object")
	}
	if err := ensureSharedShape("ErrorResponse", shapeFromSchema(portalErr), shapeFromSchema(authErr)); err != nil {
		return err
	}
	if err := validateOperations("portal", portalDoc); err != nil {
		return err
	}
	return validateOperations("auth", authDoc)
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(scope string, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s ErrorResponse must be object", scope)
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("%s ErrorResponse.required must include %q", scope, field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("%s ErrorResponse.%s must be string", scope, field)
		}
	}
	return nil
}

// validateOperations requires every operation to declare a default response
// pointing at the shared error envelope.
func validateOperations(scope string, doc openAPIDoc) error {
	if len(doc.Paths) == 0 {
		return fmt.Errorf("%s: paths missing", scope)
	}
	paths := make([]string, 0, len(doc.Paths))
	for path := range doc.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		for method, op := range doc.Paths[path] {
			if !httpMethods[method] {
				continue
			}
			def, ok := op.Responses["default"]
			if !ok || strings.TrimSpace(def.Ref) != errorResponseRef {
				return fmt.Errorf("%s %s %s: default response must reference %s", scope, strings.ToUpper(method), path, errorResponseRef)
			}
		}
	}
	return nil
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]propertyShape, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		shape := propertyShape{Type: prop.Type}
		if prop.Items != nil {
			shape.ItemsRef = strings.TrimSpace(prop.Items.Ref)
		}
		out.Properties[name] = shape
	}
	return out
}

// ensureSharedShape compares the required set and every property the auth
// envelope declares; the portal envelope may carry extra optional properties.
func ensureSharedShape(name string, portal, auth schemaShape) error {
	if portal.Type != auth.Type {
		return fmt.Errorf("%s type mismatch: %q vs %q", name, portal.Type, auth.Type)
	}
	if strings.Join(portal.Required, ",") != strings.Join(auth.Required, ",") {
		return fmt.Errorf("%s required mismatch: %v vs %v", name, portal.Required, auth.Required)
	}
	for key, authProp := range auth.Properties {
		portalProp, ok := portal.Properties[key]
		if !ok {
			return fmt.Errorf("%s missing property %q in portal schema", name, key)
		}
		if portalProp != authProp {
			return fmt.Errorf("%s property %q mismatch: %+v vs %+v", name, key, portalProp, authProp)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
