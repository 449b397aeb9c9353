package cache

import (
	"sync"
	"sync/atomic"
	"testing"
)

func zero() *int { z := 0; return &z }

func TestRunCachedMissThenHit(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var produced int32
	produce := func() (Bundle, error) {
		atomic.AddInt32(&produced, 1)
		return Bundle{Stdout: []byte("out"), ExitCode: zero(), Outputs: map[string][]byte{"obj": []byte("data")}}, nil
	}

	b1, hit1, err := c.RunCached("fp1", produce)
	if err != nil {
		t.Fatal(err)
	}
	if hit1 {
		t.Errorf("first call reported a hit")
	}

	b2, hit2, err := c.RunCached("fp1", produce)
	if err != nil {
		t.Fatal(err)
	}
	if !hit2 {
		t.Errorf("second call did not report a hit")
	}
	if string(b1.Stdout) != string(b2.Stdout) || string(b1.Outputs["obj"]) != string(b2.Outputs["obj"]) {
		t.Errorf("hit is not byte-equal to the original miss: %+v vs %+v", b1, b2)
	}
	if produced != 1 {
		t.Errorf("produce called %d times, want 1", produced)
	}
}

func TestRunCachedSingleFlight(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var calls int32
	release := make(chan struct{})
	produce := func() (Bundle, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Bundle{ExitCode: zero()}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.RunCached("concurrent", produce)
		}()
	}
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("produce invoked %d times concurrently, want at most 1 (single-flight)", calls)
	}
}

func TestRunCachedFailureNotCached(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var calls int32
	failThenSucceed := func() (Bundle, error) {
		atomic.AddInt32(&calls, 1)
		if calls == 1 {
			return Bundle{}, errTest
		}
		return Bundle{ExitCode: zero()}, nil
	}
	if _, _, err := c.RunCached("fp", failThenSucceed); err == nil {
		t.Fatal("expected error on first call")
	}
	if _, hit, err := c.RunCached("fp", failThenSucceed); err != nil || hit {
		t.Errorf("second call: hit=%v err=%v, want a fresh (non-cached) success", hit, err)
	}
	if calls != 2 {
		t.Errorf("produce called %d times, want 2 (failure must not be cached)", calls)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

var errTest = testError("boom")
