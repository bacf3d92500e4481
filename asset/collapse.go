// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/pin"
)

// Collapse implements spec.md §4.5.5: retain only the highest-numbered
// version, deleting every other one.
//
// If cascadePins is false and any non-kept version has a pin other than
// CURRENT/LATEST pointing to it, Collapse fails without deleting anything.
// If cascadePins is true, every pin other than CURRENT/LATEST on a doomed
// version is removed. In both cases CURRENT and LATEST are retargeted to
// the kept version before any version is deleted.
func (a *Asset) Collapse(cascadePins bool) error {
	return a.withDestructiveLock(func() error {
		keep, err := a.HighestVersion()
		if err != nil {
			return err
		}

		doomed, err := a.listVersions()
		if err != nil {
			return err
		}
		var toDelete []string
		for _, v := range doomed {
			if v != keep {
				toDelete = append(toDelete, v)
			}
		}

		if !cascadePins {
			for _, v := range toDelete {
				pins, err := a.VersionPins(v)
				if err != nil {
					return err
				}
				for _, p := range pins {
					if p != pin.Current && p != pin.Latest {
						return squirrelerr.New(squirrelerr.KindPinOnVictim,
							"cannot collapse: pin %q on version %q would be orphaned", p, v)
					}
				}
			}
		} else {
			for _, v := range toDelete {
				pins, err := a.VersionPins(v)
				if err != nil {
					return err
				}
				for _, p := range pins {
					if p == pin.Current || p == pin.Latest {
						continue
					}
					if err := pin.Remove(a.dir, p); err != nil {
						return err
					}
				}
			}
		}

		// CURRENT and LATEST are retargeted to the kept version unconditionally,
		// in both branches: spec.md §4.3 allows CURRENT to point at a non-latest
		// version with no other pins, which is legal input to Collapse(false)
		// but would otherwise leave it pointed at a version deleteVersionLocked
		// is about to reject for still being pinned.
		if err := pin.Set(a.dir, pin.Current, keep); err != nil {
			return err
		}
		if err := pin.Set(a.dir, pin.Latest, keep); err != nil {
			return err
		}

		for _, v := range toDelete {
			if err := a.deleteVersionLocked(v); err != nil {
				return err
			}
		}

		a.logger.Infof("collapsed asset %q to %q (removed %d versions)", a.name, keep, len(toDelete))
		return nil
	})
}
