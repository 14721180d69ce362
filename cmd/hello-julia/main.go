// Command hello-julia is the cross-language smoke test: it calls the
// externally linked hello_from_julia and prints its return value.
// The library built by juliac is supplied at link time, e.g.
//
//	CGO_LDFLAGS="-L build -l:hello.so -Wl,-rpath,build" go build ./cmd/hello-julia
package main

/*
// The symbol name and signature depend on how juliac exports
// cfunctions; adjust to match the produced library.
extern int hello_from_julia(void);
*/
import "C"

import (
	"fmt"

	"github.com/maj0e/juliabuild/internal/demo"
)

func main() {
	fmt.Println(demo.Greeting(int(C.hello_from_julia())))
}
