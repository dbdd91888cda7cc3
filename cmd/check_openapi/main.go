package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <portal-openapi.yaml> <auth-openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	portalDoc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	authDoc, err := loadDoc(os.Args[2])
	if err != nil {
		exitErr(err)
	}
	if err := check(portalDoc, authDoc); err != nil {
		exitErr(err)
	}

	fmt.Println("OpenAPI consistency check passed.")
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
