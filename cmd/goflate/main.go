// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/cosnicolaou/goflate"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"
)

type CommonFlags struct {
	Verbose bool `subcmd:"verbose,false,verbose debug/trace information"`
}

type createFlags struct {
	CommonFlags
	Output      string `subcmd:"output,,'zip file to write, omit for stdout'"`
	Comment     string `subcmd:"comment,,'archive comment'"`
	ProgressBar bool   `subcmd:"progress,true,display a progress bar"`
}

type listFlags struct {
	CommonFlags
}

type extractFlags struct {
	CommonFlags
	OutputDir string `subcmd:"dir,.,'directory to extract into'"`
}

type deflateFlags struct {
	CommonFlags
	Output string `subcmd:"output,,'output file, omit for stdout'"`
}

type inflateFlags struct {
	CommonFlags
	Output string `subcmd:"output,,'output file, omit for stdout'"`
}

var cmdSet *subcmd.CommandSet

func init() {
	createCmd := subcmd.NewCommand("create",
		subcmd.MustRegisterFlagStruct(&createFlags{}, nil, nil),
		create, subcmd.AtLeastNArguments(1))
	createCmd.Document(`create a zip archive from one or more files.`)

	listCmd := subcmd.NewCommand("list",
		subcmd.MustRegisterFlagStruct(&listFlags{}, nil, nil),
		list, subcmd.ExactlyNumArguments(1))
	listCmd.Document(`list the members of a zip archive.`)

	extractCmd := subcmd.NewCommand("extract",
		subcmd.MustRegisterFlagStruct(&extractFlags{}, nil, nil),
		extract, subcmd.ExactlyNumArguments(1))
	extractCmd.Document(`extract a zip archive's members.`)

	deflateCmd := subcmd.NewCommand("deflate",
		subcmd.MustRegisterFlagStruct(&deflateFlags{}, nil, nil),
		deflateFile, subcmd.AtLeastNArguments(0))
	deflateCmd.Document(`compress stdin, or a single file, to a raw deflate stream.`)

	inflateCmd := subcmd.NewCommand("inflate",
		subcmd.MustRegisterFlagStruct(&inflateFlags{}, nil, nil),
		inflateFile, subcmd.AtLeastNArguments(0))
	inflateCmd.Document(`decompress a raw deflate stream from stdin, or a single file.`)

	cmdSet = subcmd.NewCommandSet(createCmd, listCmd, extractCmd, deflateCmd, inflateCmd)
	cmdSet.Document(`create, list and extract zip archives, and run the raw deflate codec directly.`)
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func readAllFile(name string) ([]byte, error) {
	if name == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func writeAllFile(name string, data []byte) error {
	if name == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0644)
}

func create(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*createFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	errs := &errors.M{}
	members := make([]goflate.WriteMember, 0, len(args))
	var totalSize int64
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			errs.Append(err)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs.Append(err)
			continue
		}
		members = append(members, goflate.WriteMember{
			Name:    filepath.ToSlash(path),
			Data:    data,
			ModTime: info.ModTime(),
		})
		totalSize += info.Size()
	}
	if err := errs.Err(); err != nil {
		return err
	}

	isTTY := terminal.IsTerminal(int(os.Stdout.Fd()))
	var bar *progressbar.ProgressBar
	var progressCh chan goflate.Progress
	if cl.ProgressBar && (len(cl.Output) > 0 || !isTTY) {
		barWr := os.Stdout
		if !isTTY {
			barWr = os.Stderr
		}
		bar = progressbar.NewOptions64(totalSize,
			progressbar.OptionSetBytes64(totalSize),
			progressbar.OptionSetWriter(barWr),
			progressbar.OptionSetPredictTime(true))
		bar.RenderBlank()
		progressCh = make(chan goflate.Progress, len(members))
	}

	opts := []goflate.WriteOption{goflate.WithComment(cl.Comment)}
	if progressCh != nil {
		opts = append(opts, goflate.WithProgress(progressCh))
	}

	dst := make([]byte, goflate.MaxSize(members, cl.Comment))

	done := make(chan struct{})
	if progressCh != nil {
		go func() {
			defer close(done)
			for p := range progressCh {
				if ctx.Err() != nil {
					return
				}
				bar.Add(int(p.UncompressedSize))
			}
		}()
	}

	n, err := goflate.Write(dst, members, opts...)
	if progressCh != nil {
		close(progressCh)
		<-done
	}
	if err != nil {
		return err
	}

	return writeAllFile(cl.Output, dst[:n])
}

func list(ctx context.Context, values interface{}, args []string) error {
	_, cancel := context.WithCancel(ctx)
	defer cancel()
	cmdutil.HandleSignals(cancel, os.Interrupt)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	r, err := goflate.NewReader(data)
	if err != nil {
		return err
	}
	for _, m := range r.Members() {
		kind := "f"
		if m.IsDir {
			kind = "d"
		}
		fmt.Printf("%s %8d %8d %-8s %s  %s\n",
			kind, m.UncompressedSize, m.CompressedSize, m.Method,
			m.ModTime.Format("2006-01-02 15:04:05"), m.Name)
	}
	return nil
}

func extract(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*extractFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	r, err := goflate.NewReader(data)
	if err != nil {
		return err
	}

	errs := &errors.M{}
	for _, m := range r.Members() {
		if ctx.Err() != nil {
			errs.Append(ctx.Err())
			break
		}
		target := filepath.Join(cl.OutputDir, filepath.FromSlash(m.Name))
		if m.IsDir || strings.HasSuffix(m.Name, "/") {
			errs.Append(os.MkdirAll(target, 0755))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			errs.Append(err)
			continue
		}
		rd, err := m.Open()
		if err != nil {
			errs.Append(fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		content, err := io.ReadAll(rd)
		if err != nil {
			errs.Append(fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			errs.Append(err)
			continue
		}
	}
	return errs.Err()
}

func deflateFile(ctx context.Context, values interface{}, args []string) error {
	_, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*deflateFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	var in string
	if len(args) > 0 {
		in = args[0]
	}
	src, err := readAllFile(in)
	if err != nil {
		return err
	}
	dst := make([]byte, goflate.MaxCompressedSize(len(src)))
	n, ok := goflate.Deflate(src, dst)
	if !ok {
		return fmt.Errorf("deflate: output buffer too small")
	}
	return writeAllFile(cl.Output, dst[:n])
}

func inflateFile(ctx context.Context, values interface{}, args []string) error {
	_, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*inflateFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	var in string
	if len(args) > 0 {
		in = args[0]
	}
	src, err := readAllFile(in)
	if err != nil {
		return err
	}
	// The raw deflate format carries no output-length prefix, so the
	// buffer is grown geometrically until Inflate stops reporting
	// ResultOutputFull.
	dst := make([]byte, len(src)*4+64)
	for {
		_, n, res := goflate.Inflate(src, dst)
		switch res {
		case goflate.ResultOK:
			return writeAllFile(cl.Output, dst[:n])
		case goflate.ResultOutputFull:
			dst = make([]byte, len(dst)*2)
		default:
			return fmt.Errorf("inflate: %v", res)
		}
	}
}
