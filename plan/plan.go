// Package plan turns discovered service names into provisioning specs. Every
// function here is pure; the stack package applies the result.
package plan

import (
	"fmt"

	"hfserverless/lib/service"
	"hfserverless/resource"
	"hfserverless/storage"

	"github.com/samber/lo"
)

const (
	DefaultMemoryMB       = 8096
	DefaultTimeoutSeconds = 600

	// Lambda limits.
	minMemoryMB       = 128
	maxMemoryMB       = 10240
	maxTimeoutSeconds = 900

	RootMethod = "ANY"
)

var (
	ServiceMethods = []string{"GET", "POST"}
	AllOrigins     = []string{"*"}
	// AllMethods mirrors what API Gateway treats as "all methods" for CORS preflight.
	AllMethods = []string{"OPTIONS", "GET", "PUT", "POST", "DELETE", "PATCH", "HEAD"}
)

type CORSPolicy struct {
	AllowOrigins []string `json:"allow_origins"`
	AllowMethods []string `json:"allow_methods"`
}

func AllowAll() CORSPolicy {
	return CORSPolicy{AllowOrigins: AllOrigins, AllowMethods: AllMethods}
}

func (p CORSPolicy) AllowsAllOrigins() bool {
	return lo.Contains(p.AllowOrigins, "*")
}

func (p CORSPolicy) AllowsAllMethods() bool {
	for _, m := range AllMethods {
		if !lo.Contains(p.AllowMethods, m) {
			return false
		}
	}
	return true
}

type FunctionSpec struct {
	Name           service.Name      `json:"name"`
	ConstructID    string            `json:"construct_id"`
	Command        []string          `json:"command"`
	MemoryMB       int               `json:"memory_mb"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	MountPath      string            `json:"mount_path"`
	Environment    map[string]string `json:"environment"`
}

type RouteSpec struct {
	Name        service.Name `json:"name"`
	ConstructID string       `json:"construct_id"`
	RestAPIName string       `json:"rest_api_name"`
	Description string       `json:"description"`
	RootMethod  string       `json:"root_method"`
	PathPart    string       `json:"path_part"`
	Methods     []string     `json:"methods"`
	CORS        CORSPolicy   `json:"cors"`
	// Function is the service whose compute function backs every method.
	Function service.Name `json:"function"`
}

type Defaults struct {
	MemoryMB       int
	TimeoutSeconds int
	// Environment is added to every function; the cache variable always wins.
	Environment map[string]string
	Scope       resource.Scope
}

func DefaultDefaults() Defaults {
	return Defaults{
		MemoryMB:       DefaultMemoryMB,
		TimeoutSeconds: DefaultTimeoutSeconds,
		Environment:    map[string]string{},
		Scope:          resource.RootScope{},
	}
}

func (d Defaults) Valid() error {
	if d.MemoryMB < minMemoryMB || d.MemoryMB > maxMemoryMB {
		return fmt.Errorf("memory %d MB outside of [%d, %d]", d.MemoryMB, minMemoryMB, maxMemoryMB)
	}
	if d.TimeoutSeconds < 1 || d.TimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("timeout %ds outside of [1, %d]", d.TimeoutSeconds, maxTimeoutSeconds)
	}
	return nil
}

func (d Defaults) scope() resource.Scope {
	if d.Scope == nil {
		return resource.RootScope{}
	}
	return d.Scope
}

func Function(name service.Name, cache storage.SharedCache, d Defaults) FunctionSpec {
	env := make(map[string]string, len(d.Environment)+1)
	for k, v := range d.Environment {
		env[k] = v
	}
	for k, v := range cache.Env() {
		env[k] = v
	}
	return FunctionSpec{
		Name:           name,
		ConstructID:    resource.FunctionID(name),
		Command:        []string{name.Value()},
		MemoryMB:       d.MemoryMB,
		TimeoutSeconds: d.TimeoutSeconds,
		MountPath:      cache.MountPath,
		Environment:    env,
	}
}

func Route(name service.Name, d Defaults) RouteSpec {
	return RouteSpec{
		Name:        name,
		ConstructID: resource.APIID(name),
		RestAPIName: d.scope().PrefixedName(fmt.Sprintf("%s Service", name)),
		Description: fmt.Sprintf("This service serves %s.", name),
		RootMethod:  RootMethod,
		PathPart:    name.Value(),
		Methods:     append([]string(nil), ServiceMethods...),
		CORS:        AllowAll(),
		Function:    name,
	}
}

type Deployment struct {
	StackName string              `json:"stack_name"`
	Cache     storage.SharedCache `json:"cache"`
	Functions []FunctionSpec      `json:"functions"`
	Routes    []RouteSpec         `json:"routes"`
}

// Build plans one function and one route per name. Names must be unique.
func Build(stackName string, names []service.Name, cache storage.SharedCache, d Defaults) (Deployment, error) {
	if stackName == "" {
		return Deployment{}, fmt.Errorf("stack name must not be empty")
	}
	if err := cache.Validate(); err != nil {
		return Deployment{}, err
	}
	if err := d.Valid(); err != nil {
		return Deployment{}, err
	}
	seen := make(map[service.Name]struct{}, len(names))
	deployment := Deployment{
		StackName: stackName,
		Cache:     cache,
		Functions: make([]FunctionSpec, 0, len(names)),
		Routes:    make([]RouteSpec, 0, len(names)),
	}
	for _, name := range names {
		if err := name.Valid(); err != nil {
			return Deployment{}, err
		}
		if _, ok := seen[name]; ok {
			return Deployment{}, fmt.Errorf("service %q planned twice", name)
		}
		seen[name] = struct{}{}
		deployment.Functions = append(deployment.Functions, Function(name, cache, d))
		deployment.Routes = append(deployment.Routes, Route(name, d))
	}
	return deployment, nil
}

func (d Deployment) Names() []service.Name {
	return lo.Map(d.Functions, func(f FunctionSpec, _ int) service.Name {
		return f.Name
	})
}

func (d Deployment) Function(name service.Name) (FunctionSpec, bool) {
	return lo.Find(d.Functions, func(f FunctionSpec) bool {
		return f.Name == name
	})
}

func (d Deployment) Route(name service.Name) (RouteSpec, bool) {
	return lo.Find(d.Routes, func(r RouteSpec) bool {
		return r.Name == name
	})
}
