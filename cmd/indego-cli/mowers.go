package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/indego-homekit/plugins/indego"
)

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, "/"+indego.ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func mowersCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	flags := flag.NewFlagSet("mowers", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	resp, err := invoke(ctx, conn, "ListMowers", nil)
	if err != nil {
		fatal("list mowers", err)
	}

	var rows [][]string
	list, _ := resp["mowers"].([]any)
	for _, item := range list {
		if mower, ok := item.(map[string]any); ok {
			rows = append(rows, mowerRow(mower))
		}
	}
	if err := newPrinter(*jsonOut).render(resp, rows); err != nil {
		fatal("output", err)
	}
}

func stateCmd(ctx context.Context, conn *grpc.ClientConn, method string, args []string) {
	flags := flag.NewFlagSet(method, flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	resp, err := invoke(ctx, conn, method, mowerRequest(ctx, conn, flags.Args()))
	if err != nil {
		fatal(method, err)
	}
	if err := newPrinter(*jsonOut).render(resp, [][]string{mowerRow(resp)}); err != nil {
		fatal("output", err)
	}
}

func commandCmd(ctx context.Context, conn *grpc.ClientConn, action string, args []string) {
	flags := flag.NewFlagSet(action, flag.ExitOnError)
	_ = flags.Parse(args)

	req := mowerRequest(ctx, conn, flags.Args())
	req["action"] = action
	resp, err := invoke(ctx, conn, "SetState", req)
	if err != nil {
		fatal(action, err)
	}
	fmt.Printf("%s: sent %v (%v)\n", resp["name"], resp["action"], resp["result"])
	if msg, ok := resp["error"].(string); ok && msg != "" {
		fmt.Printf("error: %s\n", msg)
	}
}

// mowerRequest resolves an optional mower argument against the bridge's list.
func mowerRequest(ctx context.Context, conn *grpc.ClientConn, args []string) map[string]any {
	req := map[string]any{}
	if len(args) == 0 {
		return req
	}
	resp, err := invoke(ctx, conn, "ListMowers", nil)
	if err != nil {
		fatal("list mowers", err)
	}
	var names []string
	list, _ := resp["mowers"].([]any)
	for _, item := range list {
		if mower, ok := item.(map[string]any); ok {
			names = append(names, stringValue(mower["name"]))
		}
	}
	name, err := resolveMowerName(args[0], names)
	if err != nil {
		fatal("resolve mower", err)
	}
	req["mower"] = name
	return req
}

func mowerRow(mower map[string]any) []string {
	status := stringValue(mower["status"])
	if code, ok := mower["code"].(float64); ok {
		status = fmt.Sprintf("%s (%s)", status, strconv.Itoa(int(code)))
	}
	auth := "no"
	if ok, _ := mower["authenticated"].(bool); ok {
		auth = "yes"
	}
	return []string{
		stringValue(mower["name"]),
		stringValue(mower["model"]),
		stringValue(mower["serial"]),
		stringValue(mower["state"]),
		status,
		auth,
	}
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
