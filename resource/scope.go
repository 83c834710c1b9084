package resource

import (
	"fmt"

	"hfserverless/lib/service"
)

// Scope prefixes physical resource names so that several copies of the stack
// can live in one account.
type Scope interface {
	ID() string
	PrefixedName(string) string
}

var _ Scope = StageScope{}
var _ Scope = RootScope{}

type StageScope struct {
	stage string
}

func NewStageScope(stage string) Scope {
	if stage == "" {
		return RootScope{}
	}
	return StageScope{stage: stage}
}

func (s StageScope) ID() string {
	return s.stage
}

func (s StageScope) PrefixedName(name string) string {
	return fmt.Sprintf("%s-%s", s.stage, name)
}

type RootScope struct{}

func (r RootScope) ID() string {
	return ""
}

func (r RootScope) PrefixedName(name string) string {
	return name
}

// FunctionID is the construct id of the compute function of a service.
func FunctionID(name service.Name) string {
	return name.Value()
}

// APIID is the construct id of the REST API of a service.
func APIID(name service.Name) string {
	return fmt.Sprintf("%s-api", name)
}

// OutputID names the stack output carrying the endpoint URL of a service.
func OutputID(name service.Name) string {
	return fmt.Sprintf("%s-url", name)
}

func FunctionOutputID(name service.Name) string {
	return fmt.Sprintf("%s-function", name)
}
