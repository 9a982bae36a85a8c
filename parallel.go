package mega

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

// defaultParallelWorkers and maxParallelWorkers bound how many chunk fetches run concurrently
// in DownloadFileParallel, mirroring the teacher's config.dl_workers /
// SetDownloadWorkers knob.
const (
	defaultParallelWorkers = 3
	maxParallelWorkers     = 6
)

// WithParallelWorkers overrides how many concurrent range requests
// DownloadFileParallel issues.
func WithParallelWorkers(w int) Option {
	return func(c *config) { c.parallelWorkers = w }
}

// chunkPlan is one (offset, size) byte range of a file, in MEGA's
// deterministic min((i+1)*128KiB, 1MiB) progression.
type chunkPlan struct {
	offset int64
	size   int64
}

func planChunks(fileSize int64) []chunkPlan {
	var plan []chunkPlan
	var offset int64
	var delta int64
	for offset < fileSize {
		delta += 128 * 1024
		if delta > 1024*1024 {
			delta = 1024 * 1024
		}
		size := delta
		if offset+size > fileSize {
			size = fileSize - offset
		}
		plan = append(plan, chunkPlan{offset: offset, size: size})
		offset += size
	}
	return plan
}

// DownloadFileParallel fetches downloadURL in MEGA's chunk-sized ranges
// using a pool of worker goroutines, decrypting each chunk with a CTR
// counter computed from its byte offset, and writes decrypted bytes into
// dst at the matching offset. It feeds chunks into a FileValidator in
// ascending offset order once all chunks have arrived, then verifies the
// recomputed meta-MAC.
//
// fileSize must be the file's full size (from a prior GetAttributes
// call). dst is any random-access sink the caller supplies — this client
// does not open files itself, per the filesystem I/O boundary spec.md §6
// draws around it.
//
// Grounded directly on the teacher's DownloadFile: the workch/donech
// worker-pool shape and per-chunk CTR-counter adjustment are kept
// nearly as-is (cancellation goes through a context), generalized from a hardcoded local file to an
// io.WriterAt and from the teacher's whole-file CBC-MAC fold to this
// client's FileValidator.
func (e *EasyClient) DownloadFileParallel(ctx context.Context, downloadURL string, key FileKey, fileSize int64, dst io.WriterAt) error {
	workers := e.client.parallelWorkers
	if workers <= 0 {
		workers = defaultParallelWorkers
	}
	if workers > maxParallelWorkers {
		workers = maxParallelWorkers
	}

	chunks := planChunks(fileSize)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].offset < chunks[j].offset })

	keyBytes := make([]byte, 16)
	putUint128(keyBytes, key.Key)

	workch := make(chan int)
	donech := make(chan error)
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workch {
				donech <- e.fetchChunk(ctx, downloadURL, keyBytes, key.IV, chunks[id], dst)
			}
		}()
	}

	go func() {
		defer close(workch)
		for id := range chunks {
			select {
			case workch <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for range chunks {
		if err := <-donech; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	// Integrity verification requires reading back what was written, in
	// order. A sink that cannot be read back (no io.ReaderAt) is accepted
	// as a write-only destination and simply isn't verified, the same
	// opt-out DownloadFileNoVerify gives callers of the sequential path.
	rd, ok := dst.(io.ReaderAt)
	if !ok {
		return nil
	}

	validator, err := NewFileValidator(key)
	if err != nil {
		return err
	}
	buf := make([]byte, 1024*1024)
	for _, chk := range chunks {
		chunkBuf := buf[:chk.size]
		if _, err := rd.ReadAt(chunkBuf, chk.offset); err != nil {
			return fmt.Errorf("failed to re-read chunk for mac validation: %w", err)
		}
		validator.Feed(chunkBuf)
	}
	return validator.Finish(key.MetaMAC)
}

// fetchChunk downloads and decrypts one byte range, writing it into dst
// at chk.offset. The CTR counter for a chunk starting partway through
// the file is the IV advanced by offset/16 blocks — since MEGA's CTR
// counter is a plain big-endian increment of the low 64 bits, that is
// just iv.lo + offset/16.
func (e *EasyClient) fetchChunk(ctx context.Context, downloadURL string, keyBytes []byte, iv uint128, chk chunkPlan, dst io.WriterAt) error {
	rangeURL := fmt.Sprintf("%s/%d-%d", downloadURL, chk.offset, chk.offset+chk.size-1)

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", rangeURL, nil)
	if err != nil {
		return err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	chunkIV := iv
	chunkIV.lo = iv.lo + uint64(chk.offset/16)

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return err
	}
	ivBytes := make([]byte, 16)
	putUint128(ivBytes, chunkIV)
	stream := cipher.NewCTR(block, ivBytes)
	stream.XORKeyStream(data, data)

	_, err = dst.WriteAt(data, chk.offset)
	return err
}
