package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/store"
)

type runStore interface {
	core.Store
	core.RunLoader
}

// openStore parses a --store value of the form kind[:location].
func openStore(value string, logger logging.Logger) (runStore, func() error, error) {
	noop := func() error { return nil }
	kind, location, _ := strings.Cut(value, ":")
	switch kind {
	case "memory":
		return store.NewInMemoryStore(), noop, nil
	case "file":
		if location == "" {
			return nil, nil, errors.New("file store requires a directory, e.g. file:./runs")
		}
		s, err := store.NewFileStore(location)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "badger":
		if location == "" {
			return nil, nil, errors.New("badger store requires a directory, e.g. badger:./runs.db")
		}
		s, err := store.NewBadgerStore(func(o *store.BadgerOptions) {
			o.Path = location
			o.Logger = logger
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "":
		return nil, nil, errors.New("no store configured, use --store")
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
