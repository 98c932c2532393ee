// Copyright 2020 The go-simplechain Authors
// This file is part of the ethash library.
//
// The ethash library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ethash library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ethash library. If not, see <http://www.gnu.org/licenses/>.

package ethash

import (
	"runtime"
	"time"

	"github.com/simplechain-org/go-simplechain/common"
)

// Light is a verification context bound to a single epoch. It carries the
// epoch's verification cache and recomputes dataset items on the fly, trading
// compute time for a small memory footprint.
type Light struct {
	block uint64 // Block number the context was created for

	mode      Mode          // Amount of real verification to perform
	fakeFail  uint64        // Block number which fails PoW check even in fake mode
	fakeDelay time.Duration // Time delay to sleep for before returning from compute

	cache *cache // Verification cache, generated lazily on first compute
}

// NewLight creates a verification context for the epoch of the given block
// number. The underlying cache is not generated until the first compute.
func NewLight(block uint64) *Light {
	return &Light{
		block: block,
		mode:  ModeNormal,
		cache: &cache{epoch: block / epochLength},
	}
}

// Compute returns the mix digest and result hash for the given header hash and
// nonce. The ok flag is false when no proof of work could be computed.
func (l *Light) Compute(hash common.Hash, nonce uint64) (digest common.Hash, result common.Hash, ok bool) {
	switch l.mode {
	case ModeFake, ModeFullFake:
		if l.fakeDelay > 0 {
			time.Sleep(l.fakeDelay)
		}
		if l.mode == ModeFake && l.block == l.fakeFail {
			return common.Hash{}, common.Hash{}, false
		}
		return common.Hash{}, common.Hash{}, true
	}
	l.cache.generate("", 0, l.mode == ModeTest)

	size := datasetSize(l.block)
	if l.mode == ModeTest {
		size = 32 * 1024
	}
	if size%mixBytes != 0 {
		return common.Hash{}, common.Hash{}, false
	}
	rawDigest, rawResult := hashimotoLight(size, l.cache.cache, hash.Bytes(), nonce)

	// Caches are unmapped in a finalizer. Ensure that the cache stays alive
	// until after the call to hashimotoLight so it's not unmapped while being used.
	runtime.KeepAlive(l.cache)

	return common.BytesToHash(rawDigest), common.BytesToHash(rawResult), true
}

// Full is a compute context bound to a single epoch. It holds the epoch's
// entire mining dataset in memory so that dataset items resolve with a plain
// slice lookup instead of being recomputed from the cache.
type Full struct {
	block uint64 // Block number the context was created for

	mode      Mode          // Amount of real verification to perform
	fakeFail  uint64        // Block number which fails PoW check even in fake mode
	fakeDelay time.Duration // Time delay to sleep for before returning from compute

	dataset *dataset // Mining dataset, fully generated before the context is handed out
}

// NewFull creates a compute context holding the full mining dataset for the
// light context's epoch, generated in memory across all CPU cores. An optional
// progress callback receives completion percentages in [0,100]; a non-zero
// return value cancels generation, in which case ErrGenerationAborted is
// returned and no context is handed out.
func NewFull(light *Light, progress func(pct uint32) int) (*Full, error) {
	switch light.mode {
	case ModeFake, ModeFullFake:
		return &Full{
			block:     light.block,
			mode:      light.mode,
			fakeFail:  light.fakeFail,
			fakeDelay: light.fakeDelay,
		}, nil
	}
	light.cache.generate("", 0, light.mode == ModeTest)

	size := datasetSize(light.block)
	if light.mode == ModeTest {
		size = 32 * 1024
	}
	epoch := light.block / epochLength

	buffer := make([]uint32, size/4)
	err := generateDataset(buffer, epoch, light.cache.cache, progress)
	runtime.KeepAlive(light.cache)
	if err != nil {
		return nil, err
	}
	return &Full{
		block:     light.block,
		mode:      light.mode,
		fakeFail:  light.fakeFail,
		fakeDelay: light.fakeDelay,
		dataset:   &dataset{epoch: epoch, dataset: buffer},
	}, nil
}

// Compute returns the mix digest and result hash for the given header hash and
// nonce. The ok flag is false when no proof of work could be computed.
func (f *Full) Compute(hash common.Hash, nonce uint64) (digest common.Hash, result common.Hash, ok bool) {
	switch f.mode {
	case ModeFake, ModeFullFake:
		if f.fakeDelay > 0 {
			time.Sleep(f.fakeDelay)
		}
		if f.mode == ModeFake && f.block == f.fakeFail {
			return common.Hash{}, common.Hash{}, false
		}
		return common.Hash{}, common.Hash{}, true
	}
	if len(f.dataset.dataset) == 0 || uint64(len(f.dataset.dataset))*4%mixBytes != 0 {
		return common.Hash{}, common.Hash{}, false
	}
	rawDigest, rawResult := hashimotoFull(f.dataset.dataset, hash.Bytes(), nonce)

	// Datasets are unmapped in a finalizer. Ensure that the dataset stays alive
	// until after the call to hashimotoFull so it's not unmapped while being used.
	runtime.KeepAlive(f.dataset)

	return common.BytesToHash(rawDigest), common.BytesToHash(rawResult), true
}

// DAG exposes the raw dataset backing the context. The returned slice is the
// live buffer, not a copy; it must not be mutated.
func (f *Full) DAG() []uint32 {
	return f.dataset.dataset
}

// Size returns the byte size of the dataset backing the context.
func (f *Full) Size() uint64 {
	return uint64(len(f.dataset.dataset)) * 4
}

// Light returns a verification context for the given block number, backed by
// the engine's cache store. Epoch data is shared with every other context the
// engine handed out for the same epoch.
func (ethash *Ethash) Light(block uint64) *Light {
	if ethash.shared != nil {
		return ethash.shared.Light(block)
	}
	l := &Light{
		block:     block,
		mode:      ethash.config.PowMode,
		fakeFail:  ethash.fakeFail,
		fakeDelay: ethash.fakeDelay,
	}
	switch ethash.config.PowMode {
	case ModeFake, ModeFullFake:
		return l
	}
	l.cache = ethash.cache(block)
	return l
}

// Full returns a compute context for the given block number, backed by the
// engine's dataset store. Epoch data is shared with every other context the
// engine handed out for the same epoch.
func (ethash *Ethash) Full(block uint64) *Full {
	if ethash.shared != nil {
		return ethash.shared.Full(block)
	}
	f := &Full{
		block:     block,
		mode:      ethash.config.PowMode,
		fakeFail:  ethash.fakeFail,
		fakeDelay: ethash.fakeDelay,
	}
	switch ethash.config.PowMode {
	case ModeFake, ModeFullFake:
		return f
	}
	f.dataset = ethash.dataset(block)
	return f
}
