package roles

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrAccountBanned          = errors.New("account banned")
	ErrUnknownDepartment      = errors.New("unknown department")
)

// PermissionError describes a denied check. Required lists the labels that
// would have been accepted; it is informational only.
type PermissionError struct {
	Required Set
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("insufficient permission: requires one of %s", strings.Join(e.Required.Strings(), ", "))
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrInsufficientPermission
}

// Allow decides a gate check. A banned holder is always denied, Director passes
// every gate, otherwise held must share at least one label with required.
func Allow(held Set, banned bool, required ...Label) error {
	if banned {
		return ErrAccountBanned
	}
	if held.Has(Director) {
		return nil
	}
	req := NewSet(required...)
	if held.Intersects(req) {
		return nil
	}
	return &PermissionError{Required: NewSet(append([]Label{Director}, req...)...)}
}

// Department is a faction with its own roster and documents.
type Department string

const (
	DeptKCSO Department = "kcso"
	DeptMSP  Department = "msp"
	DeptMFD  Department = "mfd"
)

type departmentInfo struct {
	name         string
	member       Label
	command      Label
	subdivisions []string
}

var departments = map[Department]departmentInfo{
	DeptKCSO: {
		name:         "King County Sheriff's Office",
		member:       KCSO,
		command:      KCSOCommand,
		subdivisions: []string{"Patrol Division", "Detective Division", "Traffic Unit", "K-9 Unit", "SWAT Team"},
	},
	DeptMSP: {
		name:         "Maryland State Police",
		member:       MSP,
		command:      MSPCommand,
		subdivisions: []string{"Highway Patrol", "Criminal Investigation Division", "Aviation Unit", "Marine Unit"},
	},
	DeptMFD: {
		name:         "Montgomery Fire Department",
		member:       MFD,
		command:      MFDCommand,
		subdivisions: []string{"Fire Suppression", "Emergency Medical Services", "Hazmat Team", "Technical Rescue"},
	},
}

// Departments returns all departments in display order.
func Departments() []Department {
	return []Department{DeptKCSO, DeptMSP, DeptMFD}
}

// ParseDepartment accepts a department identifier in any case.
func ParseDepartment(s string) (Department, error) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := departments[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDepartment, s)
	}
	return d, nil
}

func (d Department) Name() string {
	return departments[d].name
}

func (d Department) MemberLabel() Label {
	return departments[d].member
}

// CommandLabel is computed from the identifier, e.g. "kcso" -> KCSO_Command.
func (d Department) CommandLabel() Label {
	return Label(strings.ToUpper(string(d)) + "_Command")
}

func (d Department) Subdivisions() []string {
	out := make([]string, len(departments[d].subdivisions))
	copy(out, departments[d].subdivisions)
	return out
}

// AllowDepartmentEdit passes Director or the department's command label.
func AllowDepartmentEdit(held Set, banned bool, dept Department) error {
	return Allow(held, banned, dept.CommandLabel())
}

// AllowDepartmentView passes department members, its command, Staff and Director.
func AllowDepartmentView(held Set, banned bool, dept Department) error {
	return Allow(held, banned, dept.MemberLabel(), dept.CommandLabel(), Staff)
}
