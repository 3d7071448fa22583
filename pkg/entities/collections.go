package entities

import (
	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/typed"
)

func Labs(s *core.Session) *typed.Collection[Lab] {
	return typed.NewCollection(s, KindLab, wrapLab)
}

func Researchers(s *core.Session) *typed.Collection[Researcher] {
	return typed.NewCollection(s, KindResearcher, wrapResearcher)
}

func Projects(s *core.Session) *typed.Collection[Project] {
	return typed.NewCollection(s, KindProject, wrapProject)
}

func Samples(s *core.Session) *typed.Collection[Sample] {
	return typed.NewCollection(s, KindSample, wrapSample)
}

func Containertypes(s *core.Session) *typed.Collection[Containertype] {
	return typed.NewCollection(s, KindContainertype, wrapContainertype)
}

func Containers(s *core.Session) *typed.Collection[Container] {
	return typed.NewCollection(s, KindContainer, wrapContainer)
}

func Processtypes(s *core.Session) *typed.Collection[Processtype] {
	return typed.NewCollection(s, KindProcesstype, wrapProcesstype)
}

func Processes(s *core.Session) *typed.Collection[Process] {
	return typed.NewCollection(s, KindProcess, wrapProcess)
}

func Artifacts(s *core.Session) *typed.Collection[Artifact] {
	return typed.NewCollection(s, KindArtifact, wrapArtifact)
}
