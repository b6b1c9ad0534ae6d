package model

// AppTemplate is an immutable blueprint for a one-click container deployment.
type AppTemplate struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Category    string            `json:"category" yaml:"category"`
	Version     string            `json:"version" yaml:"version"`
	Image       string            `json:"image" yaml:"image"`
	Ports       []string          `json:"ports" yaml:"ports"`
	Volumes     []string          `json:"volumes" yaml:"volumes"`
	Environment map[string]string `json:"environment" yaml:"environment"`
	MinMemory   int               `json:"min_memory_mb" yaml:"min_memory_mb"`
	Tags        []string          `json:"tags" yaml:"tags"`
	// Requires lists host services the app talks to. Deployments pin the
	// default version of each installed one.
	Requires    []string          `json:"requires,omitempty" yaml:"requires"`
}

// TemplateCategory is a category name with the number of templates in it.
type TemplateCategory struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
