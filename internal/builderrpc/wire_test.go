package builderrpc

import (
	"bytes"
	"testing"

	"github.com/cristim/octobuild"
	"github.com/google/go-cmp/cmp"
)

func TestRequestRoundTrip(t *testing.T) {
	req := CompileRequest{
		Toolchain:        "clang",
		Args:             []string{"-DFOO=1", "-Iinclude"},
		PreprocessedData: []byte("int main(){return 0;}"),
		PrecompiledHash:  "abc123",
	}
	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestRoundTripEmptyArgs(t *testing.T) {
	req := CompileRequest{Toolchain: "msvc"}
	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Toolchain != "msvc" || len(got.Args) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestResponseRoundTripSuccess(t *testing.T) {
	code := 0
	resp := CompileResponse{
		Ok:      true,
		Output:  octobuild.OutputInfo{Stdout: []byte("built\n"), ExitCode: &code},
		Content: []byte("\x7fELF..."),
	}
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ok || string(got.Content) != string(resp.Content) || *got.Output.ExitCode != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestResponseRoundTripError(t *testing.T) {
	resp := CompileResponse{Ok: false, ErrMsg: "compile error: undefined symbol"}
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ok || got.ErrMsg != resp.ErrMsg {
		t.Errorf("got %+v", got)
	}
	if got.Output.ExitCode != nil {
		t.Errorf("expected nil ExitCode for an error response, got %v", *got.Output.ExitCode)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	lenBuf[0] = 0xff // huge claimed length
	buf.Write(lenBuf[:])
	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}
