package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestFatal(t *testing.T) {
	err := MakeFatal(fmt.Errorf("Fatal error"))
	if !Fatal(err) {
		t.Fail()
	}
	if Fatal(fmt.Errorf("plain error")) {
		t.Fail()
	}
	if !Fatal(fmt.Errorf("Wrap: %w", err)) {
		t.Fail()
	}
}

func TestRetriable(t *testing.T) {
	i := 0
	ctx := context.Background()
	tim := time.Now()
	err := Retriable(ctx, func() error {
		i++
		return fmt.Errorf("%d", i)
	}, time.Microsecond, 3)

	if time.Since(tim) < 3*time.Microsecond {
		t.Errorf("err: excepted at least 3µs got %v", time.Since(tim))
	}

	if err == nil {
		t.Error("err: excepted 3 got nil")
	}
	if err.Error() != "3" {
		t.Error("err: excepted 3 got " + err.Error())
	}
}

func TestRetriableFatal(t *testing.T) {
	i := 0
	err := Retriable(context.Background(), func() error {
		i++
		return MakeFatal(fmt.Errorf("%d", i))
	}, time.Microsecond, 3)

	if i != 1 {
		t.Errorf("err: expected 1 try, got %d", i)
	}
	if err == nil || err.Error() != "1" {
		t.Errorf("err: expected 1, got %v", err)
	}
}
