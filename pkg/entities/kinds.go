// Package entities declares the resource kinds of the LIMS and thin typed
// wrappers over core.Entity for each of them.
package entities

import (
	"strings"

	"github.com/aretw0/lims/pkg/core"
)

var (
	KindLab           = &core.Kind{Name: "Lab", Collection: "labs", Tag: "lab"}
	KindResearcher    = &core.Kind{Name: "Researcher", Collection: "researchers", Tag: "researcher"}
	KindProject       = &core.Kind{Name: "Project", Collection: "projects", Tag: "project"}
	KindSample        = &core.Kind{Name: "Sample", Collection: "samples", Tag: "sample"}
	KindContainertype = &core.Kind{Name: "Containertype", Collection: "containertypes", Tag: "container-type"}
	KindContainer     = &core.Kind{Name: "Container", Collection: "containers", Tag: "container"}
	KindProcesstype   = &core.Kind{Name: "Processtype", Collection: "processtypes", Tag: "process-type"}
	KindProcess       = &core.Kind{Name: "Process", Collection: "processes", Tag: "process"}
	KindArtifact      = &core.Kind{Name: "Artifact", Collection: "artifacts", Tag: "artifact"}
)

// Field tables reference other kinds, so they are filled in at init.
func init() {
	KindLab.Fields = map[string]core.Binding{
		"name":             core.StringField("name"),
		"billing-address":  core.StringDictField("billing-address"),
		"shipping-address": core.StringDictField("shipping-address"),
		"website":          core.StringField("website"),
		"udf":              core.UDFField(),
		"udt":              core.UDTField(),
		"externalids":      core.ExternalIDsField(),
	}
	KindResearcher.Fields = map[string]core.Binding{
		"first-name":  core.StringField("first-name"),
		"last-name":   core.StringField("last-name"),
		"phone":       core.StringField("phone"),
		"fax":         core.StringField("fax"),
		"email":       core.StringField("email"),
		"initials":    core.StringField("initials"),
		"lab":         core.RefField("lab", KindLab),
		"udf":         core.UDFField(),
		"udt":         core.UDTField(),
		"externalids": core.ExternalIDsField(),
	}
	KindProject.Fields = map[string]core.Binding{
		"name":         core.StringField("name"),
		"open-date":    core.StringField("open-date"),
		"close-date":   core.StringField("close-date"),
		"invoice-date": core.StringField("invoice-date"),
		"researcher":   core.RefField("researcher", KindResearcher),
		"udf":          core.UDFField(),
		"udt":          core.UDTField(),
		"externalids":  core.ExternalIDsField(),
	}
	KindSample.Fields = map[string]core.Binding{
		"name":           core.StringField("name"),
		"date-received":  core.StringField("date-received"),
		"date-completed": core.StringField("date-completed"),
		"project":        core.RefField("project", KindProject),
		"submitter":      core.RefField("submitter", KindResearcher),
		"artifact":       core.RefField("artifact", KindArtifact),
		"udf":            core.UDFField(),
		"udt":            core.UDTField(),
		"externalids":    core.ExternalIDsField(),
	}
	KindContainertype.Fields = map[string]core.Binding{
		"name":              core.AttributeField("name"),
		"calibrant-wells":   core.StringListField("calibrant-well"),
		"unavailable-wells": core.StringListField("unavailable-well"),
		"x-dimension":       core.DimensionField("x-dimension"),
		"y-dimension":       core.DimensionField("y-dimension"),
	}
	KindContainer.Fields = map[string]core.Binding{
		"name":           core.StringField("name"),
		"type":           core.RefField("type", KindContainertype),
		"occupied-wells": core.IntegerField("occupied-wells"),
		"placements":     core.PlacementsField("placement", KindArtifact),
		"udf":            core.UDFField(),
		"udt":            core.UDTField(),
		"state":          core.StringField("state"),
	}
	KindProcesstype.Fields = map[string]core.Binding{
		"name": core.AttributeField("name"),
	}
	KindProcess.Fields = map[string]core.Binding{
		"type":          core.RefField("type", KindProcesstype),
		"date-run":      core.StringField("date-run"),
		"technician":    core.RefField("technician", KindResearcher),
		"protocol-name": core.StringField("protocol-name"),
		"udf":           core.UDFField(),
		"udt":           core.UDTField(),
	}
	KindArtifact.Fields = map[string]core.Binding{
		"state":          core.StateField(),
		"name":           core.StringField("name"),
		"type":           core.StringField("type"),
		"output-type":    core.StringField("output-type"),
		"parent-process": core.RefField("parent-process", KindProcess),
		"volume":         core.StringField("volume"),
		"concentration":  core.StringField("concentration"),
		"qc-flag":        core.StringField("qc-flag"),
		"location":       core.LocationField("location", KindContainer),
		"working-flag":   core.StringField("working-flag"),
		"samples":        core.RefListField("sample", KindSample),
		"udf":            core.UDFField(),
	}
}

// Kinds lists every declared kind.
func Kinds() []*core.Kind {
	return []*core.Kind{
		KindLab, KindResearcher, KindProject, KindSample, KindContainertype,
		KindContainer, KindProcesstype, KindProcess, KindArtifact,
	}
}

// KindByName finds a kind by name or collection, ignoring case
// ("sample", "Sample" and "samples" all resolve to KindSample).
func KindByName(name string) (*core.Kind, bool) {
	for _, k := range Kinds() {
		if strings.EqualFold(k.Name, name) || strings.EqualFold(k.Collection, name) {
			return k, true
		}
	}
	return nil, false
}
