// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package try

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(ret error, panicWith any) (err error) {
	defer Recover(&err)

	if panicWith != nil {
		panic(panicWith)
	}
	return ret
}

func TestRecover(t *testing.T) {
	handlerErr := errors.New("handler failed")
	panicErr := errors.New("nil map write")

	t.Run("will convert a panic into a PanicError", func(t *testing.T) {
		err := serve(nil, "index out of range")

		var perr PanicError
		if !assert.ErrorAs(t, err, &perr) {
			return
		}
		if !assert.Equal(t, "index out of range", perr.Value) {
			return
		}
		if !assert.Contains(t, perr.Error(), "index out of range") {
			return
		}
		if !assert.Nil(t, perr.Unwrap()) {
			return
		}
		if !assert.Contains(t, string(perr.Stack), "try.serve") {
			return
		}
	})

	t.Run("will unwrap a panic value which is an error", func(t *testing.T) {
		err := serve(nil, panicErr)
		if !assert.ErrorIs(t, err, panicErr) {
			return
		}
	})

	t.Run("will keep an error set before the panic", func(t *testing.T) {
		err := func() (err error) {
			defer Recover(&err)
			err = handlerErr
			panic(panicErr)
		}()

		if !assert.ErrorIs(t, err, handlerErr) {
			return
		}
		if !assert.ErrorIs(t, err, panicErr) {
			return
		}
	})

	t.Run("will leave the error untouched if nothing panics", func(t *testing.T) {
		if !assert.Nil(t, serve(nil, nil)) {
			return
		}
		if !assert.Equal(t, handlerErr, serve(handlerErr, nil)) {
			return
		}
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestClose(t *testing.T) {
	readErr := errors.New("read failed")

	t.Run("will join a close failure into the error", func(t *testing.T) {
		testCases := []struct {
			Name string
			Ret  error
		}{
			{Name: "if the error is nil"},
			{Name: "if the error is set", Ret: readErr},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				closeErr := errors.New("use of closed network connection")
				sock := closerFunc(func() error { return closeErr })

				err := func() (err error) {
					defer Close(&err, sock)
					return testCase.Ret
				}()

				var cerr CloseError
				if !assert.ErrorAs(t, err, &cerr) {
					return
				}
				if !assert.ErrorIs(t, cerr, closeErr) {
					return
				}
				if testCase.Ret == nil {
					return
				}
				if !assert.ErrorIs(t, err, testCase.Ret) {
					return
				}
			})
		}
	})

	t.Run("will not change the error", func(t *testing.T) {
		t.Run("if the value is not an io.Closer", func(t *testing.T) {
			err := func() (err error) {
				defer Close(&err, "socket")
				return readErr
			}()
			if !assert.Equal(t, readErr, err) {
				return
			}
		})

		t.Run("if the socket was already closed", func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			server.Close()

			err := func() (err error) {
				defer Close(&err, server)
				return readErr
			}()
			if !assert.Equal(t, readErr, err) {
				return
			}
		})

		t.Run("if a listener was already closed", func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if !assert.Nil(t, err) {
				return
			}
			ln.Close()

			err = func() (err error) {
				defer Close(&err, ln)
				return nil
			}()
			if !assert.Nil(t, err) {
				return
			}
		})

		t.Run("if Close succeeds", func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()

			err := func() (err error) {
				defer Close(&err, server)
				return nil
			}()
			if !assert.Nil(t, err) {
				return
			}
		})
	})
}
