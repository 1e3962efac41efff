package schema

import "sync"

// Registry is the in-memory index of project schemas. It is replaced
// wholesale on startup and after every admin mutation.
type Registry struct {
	mu           sync.RWMutex
	projects     map[string]*Project
	definitions  map[string]*EntityDefinition            // by definition id
	byProjectURL map[string]map[string]*EntityDefinition // projectID -> url -> definition
	fields       map[string]FieldList                    // by definition id
}

func NewRegistry() *Registry {
	return &Registry{
		projects:     make(map[string]*Project),
		definitions:  make(map[string]*EntityDefinition),
		byProjectURL: make(map[string]map[string]*EntityDefinition),
		fields:       make(map[string]FieldList),
	}
}

// GetProject returns the project with the given id, or nil.
func (r *Registry) GetProject(id string) *Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[id]
}

// AllProjects returns all registered projects.
func (r *Registry) AllProjects() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	projects := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	return projects
}

// GetDefinition returns the entity definition with the given id, or nil.
func (r *Registry) GetDefinition(id string) *EntityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.definitions[id]
}

// GetDefinitionByURL resolves a definition by its project-scoped URL slug.
func (r *Registry) GetDefinitionByURL(projectID, url string) *EntityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byURL := r.byProjectURL[projectID]
	if byURL == nil {
		return nil
	}
	return byURL[url]
}

// DefinitionsForProject returns all definitions owned by the project.
func (r *Registry) DefinitionsForProject(projectID string) []*EntityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []*EntityDefinition
	for _, d := range r.definitions {
		if d.ProjectID == projectID {
			defs = append(defs, d)
		}
	}
	return defs
}

// FieldsFor returns the field list of a definition in declared order.
func (r *Registry) FieldsFor(definitionID string) FieldList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[definitionID]
}

// Load replaces the registry contents. Called during startup and after
// admin mutations.
func (r *Registry) Load(projects []*Project, defs []*EntityDefinition, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects = make(map[string]*Project, len(projects))
	for _, p := range projects {
		r.projects[p.ID] = p
	}

	r.definitions = make(map[string]*EntityDefinition, len(defs))
	r.byProjectURL = make(map[string]map[string]*EntityDefinition)
	for _, d := range defs {
		r.definitions[d.ID] = d
		byURL := r.byProjectURL[d.ProjectID]
		if byURL == nil {
			byURL = make(map[string]*EntityDefinition)
			r.byProjectURL[d.ProjectID] = byURL
		}
		byURL[d.URL] = d
	}

	r.fields = make(map[string]FieldList)
	for _, f := range fields {
		r.fields[f.EntityDefinitionID] = append(r.fields[f.EntityDefinitionID], f)
	}
	for id, fl := range r.fields {
		r.fields[id] = fl.Sorted()
	}
}
