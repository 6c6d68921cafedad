package acer

import (
	"log"
	"os"
	"path/filepath"

	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	modelFilename     = "model"
	optimizerFilename = "optimizer"
)

// Save writes the shared model and the optimizer state
// into a directory, creating the directory if needed.
func (p *ParamServer) Save(dir string) (err error) {
	defer essentials.AddCtxTo("save checkpoint", &err)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = serializer.SaveAny(filepath.Join(dir, modelFilename),
		p.shared.Base, p.shared.Actor, p.shared.Critic)
	if err != nil {
		return err
	}
	return serializer.SaveAny(filepath.Join(dir, optimizerFilename), p.opt)
}

// Load restores the shared model from a directory.
//
// The average model is re-anchored to the restored
// parameters.
// A missing optimizer blob is not an error; a warning is
// logged and the optimizer keeps its current state.
func (p *ParamServer) Load(dir string) (err error) {
	defer essentials.AddCtxTo("load checkpoint", &err)

	var base, actor, critic anyrnn.Block
	err = serializer.LoadAny(filepath.Join(dir, modelFilename),
		&base, &actor, &critic)
	if err != nil {
		return err
	}
	loaded := &Agent{Base: base, Actor: actor, Critic: critic}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Value-copy into the existing parameter storage so
	// that worker key mappings stay valid.
	CopyParams(p.sharedParams, loaded.AllParameters())
	CopyParams(p.averageParams, p.sharedParams)

	optPath := filepath.Join(dir, optimizerFilename)
	if _, statErr := os.Stat(optPath); os.IsNotExist(statErr) {
		log.Printf("checkpoint: %s not found; loaded model only", optPath)
		return nil
	}
	var opt *RMSProp
	if err := serializer.LoadAny(optPath, &opt); err != nil {
		return err
	}
	opt.Bind(p.sharedParams)
	p.opt = opt
	return nil
}
