package lims_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/lims"
	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/entities"
)

const exampleBase = "https://lims.example.org/api/v2"

func exampleFacade() *core.MemoryFacade {
	mem := core.NewMemoryFacade()
	mustAdd := func(uri, raw string) {
		if err := mem.AddXML(uri, raw); err != nil {
			log.Fatal(err)
		}
	}
	mustAdd(exampleBase+"/samples/ADM1A1", `<smp:sample xmlns:smp="http://genologics.com/ri/sample" xmlns:udf="http://genologics.com/ri/userdefined" limsid="ADM1A1" uri="`+exampleBase+`/samples/ADM1A1">
  <name>Liver biopsy</name>
  <project limsid="ADM1" uri="`+exampleBase+`/projects/ADM1"/>
  <udf:field type="Numeric" name="Concentration">12.5</udf:field>
</smp:sample>`)
	mustAdd(exampleBase+"/projects/ADM1", `<prj:project xmlns:prj="http://genologics.com/ri/project" limsid="ADM1" uri="`+exampleBase+`/projects/ADM1">
  <name>Hepatic panel</name>
</prj:project>`)
	return mem
}

// Example_basic demonstrates reading fields and following a reference.
func Example_basic() {
	ctx := context.Background()

	// Any backend works; the in-memory facade keeps the example offline.
	s, err := lims.New(ctx, exampleBase, lims.WithFacade(exampleFacade()))
	if err != nil {
		log.Fatal(err)
	}

	sample := entities.Samples(s).Get("ADM1A1")
	name, err := sample.Name(ctx)
	if err != nil {
		log.Fatal(err)
	}
	project, _, err := sample.Project(ctx)
	if err != nil {
		log.Fatal(err)
	}
	projectName, err := project.Name(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s in %s\n", name, projectName)
	// Output:
	// Liver biopsy in Hepatic panel
}

// Example_udf demonstrates editing a user-defined field and saving it.
func Example_udf() {
	ctx := context.Background()
	mem := exampleFacade()
	s := lims.NewSession(mem, exampleBase)

	sample := entities.Samples(s).Get("ADM1A1")
	udf, err := sample.UDF(ctx)
	if err != nil {
		log.Fatal(err)
	}
	before, _ := udf.Get("Concentration")
	if err := udf.Set("Concentration", 15); err != nil {
		log.Fatal(err)
	}
	if err := sample.Put(ctx); err != nil {
		log.Fatal(err)
	}

	stored, _ := mem.Stored(exampleBase + "/samples/ADM1A1")
	field := stored.FindElement("//field[@name='Concentration']")
	fmt.Printf("%s -> %s\n", before, field.Text())
	// Output:
	// 12.5 -> 15
}
