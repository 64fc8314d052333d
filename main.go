// Command ext4fs opens a raw disk image and prints the superblock summary.
// When also given a path, it then prints that path's mode and size,
// followed by its directory listing or, for a file, its contents.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-ext4fs/ext4fs/ext4"
)

func main() {
	disk := flag.String("disk", "", "path to a raw ext4 disk image")
	flag.Parse()

	if *disk == "" {
		log.Fatal("missing -disk")
	}

	f, err := os.Open(*disk)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	fsys, err := ext4.Open(f)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *disk, err)
	}
	if fsys == nil {
		log.Fatalf("%s does not look like an ext4 image", *disk)
	}

	fmt.Println(fsys.Info())

	target := flag.Arg(0)
	if target == "" {
		return
	}

	handle, err := fsys.OpenPath(target)
	if err != nil {
		log.Fatalf("failed to open %s: %v", target, err)
	}
	if handle == nil {
		log.Fatalf("%s: no such file or directory", target)
	}

	info, err := handle.Stat()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %10d %s\n", handle.RenderMode(), info.Size(), target)

	if info.IsDir() {
		entries, err := handle.ReadDir(0)
		if err != nil {
			log.Fatal(err)
		}
		for _, e := range entries {
			fmt.Println(" ", e.Name())
		}
		return
	}

	if _, err := io.Copy(os.Stdout, handle); err != nil {
		log.Fatal(err)
	}
}
