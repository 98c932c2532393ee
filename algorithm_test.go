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
	"bytes"
	"encoding/binary"
	"math/big"
	"reflect"
	"testing"

	"github.com/simplechain-org/go-simplechain/common/hexutil"
	"github.com/simplechain-org/go-simplechain/crypto"
	"golang.org/x/crypto/sha3"
)

// Tests that the cache and dataset sizes are well formed: multiples of their
// item widths, prime row counts and growing monotonically across epochs.
func TestSizeCalculations(t *testing.T) {
	var prev uint64
	for epoch := 0; epoch < 32; epoch++ {
		size := calcCacheSize(epoch)
		if size%hashBytes != 0 {
			t.Errorf("cache epoch %d: size %d not a multiple of %d", epoch, size, hashBytes)
		}
		if !new(big.Int).SetUint64(size / hashBytes).ProbablyPrime(20) {
			t.Errorf("cache epoch %d: row count %d not prime", epoch, size/hashBytes)
		}
		if size <= prev {
			t.Errorf("cache epoch %d: size %d not above previous %d", epoch, size, prev)
		}
		prev = size
	}
	prev = 0
	for epoch := 0; epoch < 32; epoch++ {
		size := calcDatasetSize(epoch)
		if size%mixBytes != 0 {
			t.Errorf("dataset epoch %d: size %d not a multiple of %d", epoch, size, mixBytes)
		}
		if !new(big.Int).SetUint64(size / mixBytes).ProbablyPrime(20) {
			t.Errorf("dataset epoch %d: row count %d not prime", epoch, size/mixBytes)
		}
		if size <= prev {
			t.Errorf("dataset epoch %d: size %d not above previous %d", epoch, size, prev)
		}
		prev = size
	}
	// Spot check the genesis epochs against known values
	if size := calcDatasetSize(0); size != 1073739904 {
		t.Errorf("dataset epoch 0: have %d, want %d", size, 1073739904)
	}
	if size := calcDatasetSize(1); size != 1082130304 {
		t.Errorf("dataset epoch 1: have %d, want %d", size, 1082130304)
	}
	// The epoch must roll over on the exact block boundary
	if cacheSize(epochLength-1) != calcCacheSize(0) {
		t.Errorf("cache size mismatch below the epoch boundary")
	}
	if cacheSize(epochLength) != calcCacheSize(1) {
		t.Errorf("cache size mismatch on the epoch boundary")
	}
	if datasetSize(epochLength-1) == datasetSize(epochLength) {
		t.Errorf("dataset size identical across the epoch boundary")
	}
}

// Tests that verification caches are deterministic for one seed and differ
// between seeds.
func TestCacheGeneration(t *testing.T) {
	first := make([]uint32, 1024/4)
	generateCache(first, 0, seedHash(0))

	second := make([]uint32, 1024/4)
	generateCache(second, 0, seedHash(0))

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cache content not deterministic")
	}
	other := make([]uint32, 1024/4)
	generateCache(other, 1, seedHash(epochLength+1))

	if reflect.DeepEqual(first, other) {
		t.Fatalf("caches for different seeds match")
	}
}

// Tests that the parallel dataset assembly produces the exact same items as
// computing every item one by one from the cache.
func TestDatasetGeneration(t *testing.T) {
	cache := make([]uint32, 1024/4)
	generateCache(cache, 0, seedHash(0))

	dataset := make([]uint32, 32*1024/4)
	if err := generateDataset(dataset, 0, cache, nil); err != nil {
		t.Fatalf("failed to generate dataset: %v", err)
	}
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())

	for index := 0; index < 32*1024/hashBytes; index++ {
		raw := generateDatasetItem(cache, uint32(index), keccak512)

		want := make([]uint32, hashWords)
		for i := range want {
			want[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		if have := dataset[index*hashWords : (index+1)*hashWords]; !reflect.DeepEqual(have, want) {
			t.Fatalf("dataset item %d mismatch: have %x, want %x", index, have, want)
		}
	}
}

// Tests whether the hashimoto lookup works for both light as well as the full
// datasets.
func TestHashimoto(t *testing.T) {
	// Create the verification cache and mining dataset
	cache := make([]uint32, 1024/4)
	generateCache(cache, 0, make([]byte, 32))

	dataset := make([]uint32, 32*1024/4)
	if err := generateDataset(dataset, 0, cache, nil); err != nil {
		t.Fatalf("failed to generate dataset: %v", err)
	}
	// Create a block to verify
	hash := hexutil.MustDecode("0xc9149cc0386e689d789a1c2f3d5d169a61a6218c6a545c345bde45cc2dd5f3be")
	nonce := uint64(0)

	wantDigest := hexutil.MustDecode("0xe4073cffaef931d37117cefd9afd27ea0f1cad6a981dd2605c4a1ac97c519800")
	wantResult := hexutil.MustDecode("0xd3539235ee2e6f8db665c0a72169f55b7f6c605712330b778ec3944f0eb5a557")

	digest, result := hashimotoLight(32*1024, cache, hash, nonce)
	if !bytes.Equal(digest, wantDigest) {
		t.Errorf("light hashimoto digest mismatch: have %x, want %x", digest, wantDigest)
	}
	if !bytes.Equal(result, wantResult) {
		t.Errorf("light hashimoto result mismatch: have %x, want %x", result, wantResult)
	}
	digest, result = hashimotoFull(dataset, hash, nonce)
	if !bytes.Equal(digest, wantDigest) {
		t.Errorf("full hashimoto digest mismatch: have %x, want %x", digest, wantDigest)
	}
	if !bytes.Equal(result, wantResult) {
		t.Errorf("full hashimoto result mismatch: have %x, want %x", result, wantResult)
	}
}

// Tests that changing any input bit flips the hashimoto outputs.
func TestHashimotoUniqueness(t *testing.T) {
	cache := make([]uint32, 1024/4)
	generateCache(cache, 0, seedHash(0))

	hash := hexutil.MustDecode("0xc9149cc0386e689d789a1c2f3d5d169a61a6218c6a545c345bde45cc2dd5f3be")

	_, base := hashimotoLight(32*1024, cache, hash, 0)
	if _, next := hashimotoLight(32*1024, cache, hash, 1); bytes.Equal(base, next) {
		t.Errorf("results for adjacent nonces match: %x", base)
	}
	flipped := make([]byte, len(hash))
	copy(flipped, hash)
	flipped[0] ^= 0x01

	if _, next := hashimotoLight(32*1024, cache, flipped, 0); bytes.Equal(base, next) {
		t.Errorf("results for different header hashes match: %x", base)
	}
}

// Tests that the epoch seeds chain correctly from the genesis seed.
func TestSeedHash(t *testing.T) {
	if seed := seedHash(0); !bytes.Equal(seed, make([]byte, 32)) {
		t.Errorf("genesis seed mismatch: have %x, want zeroes", seed)
	}
	if seed := seedHash(epochLength - 1); !bytes.Equal(seed, make([]byte, 32)) {
		t.Errorf("seed below the epoch boundary mismatch: have %x, want zeroes", seed)
	}
	want := hexutil.MustDecode("0x290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563")
	if seed := seedHash(epochLength); !bytes.Equal(seed, want) {
		t.Errorf("epoch 1 seed mismatch: have %x, want %x", seed, want)
	}
	seed := make([]byte, 32)
	seen := make(map[string]uint64, 64)
	for epoch := uint64(0); epoch < 64; epoch++ {
		if have := seedHash(epoch*epochLength + 1); !bytes.Equal(have, seed) {
			t.Fatalf("epoch %d seed mismatch: have %x, want %x", epoch, have, seed)
		}
		if prev, ok := seen[string(seed)]; ok {
			t.Fatalf("epoch %d seed collides with epoch %d: %x", epoch, prev, seed)
		}
		seen[string(seed)] = epoch
		seed = crypto.Keccak256(seed)
	}
}

// Benchmarks the light verification performance.
func BenchmarkHashimotoLight(b *testing.B) {
	cache := make([]uint32, 1024/4)
	generateCache(cache, 0, seedHash(0))

	hash := hexutil.MustDecode("0xc9149cc0386e689d789a1c2f3d5d169a61a6218c6a545c345bde45cc2dd5f3be")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hashimotoLight(32*1024, cache, hash, uint64(i))
	}
}

// Benchmarks the dataset assembly performance.
func BenchmarkDatasetGeneration(b *testing.B) {
	cache := make([]uint32, 1024/4)
	generateCache(cache, 0, seedHash(0))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dataset := make([]uint32, 32*1024/4)
		generateDataset(dataset, 0, cache, nil)
	}
}
