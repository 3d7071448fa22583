package core_test

import (
	"testing"

	"github.com/aretw0/lims/pkg/core"
)

const base = "http://lims.test/api/v2"

var (
	kindResearcher = &core.Kind{Name: "Researcher", Collection: "researchers", Tag: "researcher"}
	kindProject    = &core.Kind{Name: "Project", Collection: "projects", Tag: "project"}
	kindSample     = &core.Kind{Name: "Sample", Collection: "samples", Tag: "sample"}
	kindArtifact   = &core.Kind{Name: "Artifact", Collection: "artifacts", Tag: "artifact"}
	kindContainer  = &core.Kind{Name: "Container", Collection: "containers", Tag: "container"}
	kindCtype      = &core.Kind{Name: "Containertype", Collection: "containertypes", Tag: "container-type"}
)

func init() {
	kindResearcher.Fields = map[string]core.Binding{
		"first-name": core.StringField("first-name"),
		"email":      core.StringField("email"),
	}
	kindProject.Fields = map[string]core.Binding{
		"name":       core.StringField("name"),
		"researcher": core.RefField("researcher", kindResearcher),
		"udf":        core.UDFField(),
		"udt":        core.UDTField(),
	}
	kindSample.Fields = map[string]core.Binding{
		"name":          core.StringField("name"),
		"date-received": core.StringField("date-received"),
		"project":       core.RefField("project", kindProject),
		"submitter":     core.RefField("submitter", kindResearcher),
		"artifact":      core.RefField("artifact", kindArtifact),
		"udf":           core.UDFField(),
		"udt":           core.UDTField(),
		"externalids":   core.ExternalIDsField(),
	}
	kindArtifact.Fields = map[string]core.Binding{
		"name":     core.StringField("name"),
		"state":    core.StateField(),
		"location": core.LocationField("location", kindContainer),
		"samples":  core.RefListField("sample", kindSample),
		"udf":      core.UDFField(),
	}
	kindContainer.Fields = map[string]core.Binding{
		"name":           core.StringField("name"),
		"type":           core.RefField("type", kindCtype),
		"occupied-wells": core.IntegerField("occupied-wells"),
		"placements":     core.PlacementsField("placement", kindArtifact),
	}
	kindCtype.Fields = map[string]core.Binding{
		"name":              core.AttributeField("name"),
		"calibrant-wells":   core.StringListField("calibrant-well"),
		"unavailable-wells": core.StringListField("unavailable-well"),
		"x-dimension":       core.DimensionField("x-dimension"),
		"y-dimension":       core.DimensionField("y-dimension"),
	}
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<smp:sample xmlns:smp="http://genologics.com/ri/sample" xmlns:udf="http://genologics.com/ri/userdefined" xmlns:ri="http://genologics.com/ri" uri="http://lims.test/api/v2/samples/S1" limsid="S1">
  <name>Joels proper sample-20</name>
  <date-received>2012-01-01</date-received>
  <project uri="http://lims.test/api/v2/projects/P1" limsid="P1"/>
  <submitter uri="http://lims.test/api/v2/researchers/R1"/>
  <artifact uri="http://lims.test/api/v2/artifacts/A1?state=1" limsid="A1"/>
  <udf:field type="String" name="Color">Blue</udf:field>
  <udf:field type="Numeric" name="Count">3</udf:field>
  <udf:field type="Numeric" name="Ratio">0.75</udf:field>
  <udf:field type="Boolean" name="Approved">true</udf:field>
  <udf:field type="Date" name="Shipped">2012-03-04</udf:field>
  <udf:field type="Text" name="Notes"></udf:field>
  <ri:externalid id="EXT-1" uri="http://other.test/records/1"/>
</smp:sample>`

const projectXML = `<prj:project xmlns:prj="http://genologics.com/ri/project" xmlns:udf="http://genologics.com/ri/userdefined" uri="http://lims.test/api/v2/projects/P1" limsid="P1">
  <name>Project one</name>
  <researcher uri="http://lims.test/api/v2/researchers/R1"/>
  <udf:type name="Sequencing">
    <udf:field type="String" name="Platform">HiSeq</udf:field>
  </udf:type>
</prj:project>`

const researcherXML = `<res:researcher xmlns:res="http://genologics.com/ri/researcher" uri="http://lims.test/api/v2/researchers/R1">
  <first-name>Per</first-name>
  <email>per@lims.test</email>
</res:researcher>`

const artifactXML = `<art:artifact xmlns:art="http://genologics.com/ri/artifact" uri="http://lims.test/api/v2/artifacts/A1?state=1" limsid="A1">
  <name>Artifact one</name>
  <location>
    <container uri="http://lims.test/api/v2/containers/C1" limsid="C1"/>
    <value>A:1</value>
  </location>
  <sample uri="http://lims.test/api/v2/samples/S1" limsid="S1"/>
  <sample uri="http://lims.test/api/v2/samples/S2" limsid="S2"/>
  <sample uri="http://lims.test/api/v2/samples/S1" limsid="S1"/>
</art:artifact>`

const containerXML = `<con:container xmlns:con="http://genologics.com/ri/container" uri="http://lims.test/api/v2/containers/C1" limsid="C1">
  <name>Plate one</name>
  <type uri="http://lims.test/api/v2/containertypes/CT1" name="96 well plate"/>
  <occupied-wells>3</occupied-wells>
  <placement uri="http://lims.test/api/v2/artifacts/A1" limsid="A1"><value>A:1</value></placement>
  <placement uri="http://lims.test/api/v2/artifacts/A2" limsid="A2"><value>B:1</value></placement>
  <placement uri="http://lims.test/api/v2/artifacts/A3" limsid="A3"><value>C:1</value></placement>
</con:container>`

const containertypeXML = `<ctp:container-type xmlns:ctp="http://genologics.com/ri/containertype" uri="http://lims.test/api/v2/containertypes/CT1" name="96 well plate">
  <calibrant-well>A:1</calibrant-well>
  <calibrant-well>H:12</calibrant-well>
  <x-dimension><is-alpha>false</is-alpha><offset>1</offset><size>12</size></x-dimension>
  <y-dimension><is-alpha>True</is-alpha><offset>0</offset><size>8</size></y-dimension>
</ctp:container-type>`

func plainArtifact(id string) string {
	return `<art:artifact xmlns:art="http://genologics.com/ri/artifact" uri="` + base + `/artifacts/` + id + `" limsid="` + id + `"><name>` + id + `</name></art:artifact>`
}

// newFixture returns a session over an in-memory facade holding one
// document of every test kind.
func newFixture(t *testing.T) (*core.Session, *core.MemoryFacade) {
	t.Helper()
	mem := core.NewMemoryFacade()
	docs := map[string]string{
		base + "/samples/S1":         sampleXML,
		base + "/projects/P1":        projectXML,
		base + "/researchers/R1":     researcherXML,
		base + "/artifacts/A1":       artifactXML,
		base + "/artifacts/A2":       plainArtifact("A2"),
		base + "/artifacts/A3":       plainArtifact("A3"),
		base + "/containers/C1":      containerXML,
		base + "/containertypes/CT1": containertypeXML,
	}
	for uri, raw := range docs {
		if err := mem.AddXML(uri, raw); err != nil {
			t.Fatalf("AddXML %s: %v", uri, err)
		}
	}
	return core.NewSession(mem, base), mem
}
