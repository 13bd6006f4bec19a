package main

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/jkbrsn/vigil"
	"github.com/jkbrsn/vigil/pkg/dochook"
	"github.com/jkbrsn/vigil/pkg/fshook"
	"github.com/jkbrsn/vigil/pkg/kvhook"
)

// fsFlags select the filesystem and the filter of the filesystem subcommands.
type fsFlags struct {
	webhdfs     string
	hdfsUser    string
	root        string
	size        int64
	ignoredExt  []string
	keepIgnored bool
}

func (f *fsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.webhdfs, "webhdfs", envString(envWebHDFSURL, ""), "WebHDFS namenode URL, also "+envWebHDFSURL+"; local filesystem when empty")
	cmd.Flags().StringVar(&f.hdfsUser, "hdfs-user", "", "WebHDFS user.name")
	cmd.Flags().StringVar(&f.root, "root", "", "local directory paths are relative to")
	cmd.Flags().Int64Var(&f.size, "size", -1, "only count files of exactly this many bytes")
	cmd.Flags().StringSliceVar(&f.ignoredExt, "ignored-ext", vigil.DefaultIgnoredExt, "extensions of files still being written")
	cmd.Flags().BoolVar(&f.keepIgnored, "keep-ignored", false, "count files with an ignored extension")
}

func (f *fsFlags) hook(c *cli) (vigil.FileSystemHook, error) {
	if f.webhdfs == "" {
		return fshook.NewLocal(f.root), nil
	}
	return fshook.NewWebHDFS(f.webhdfs,
		fshook.WithWebHDFSUser(f.hdfsUser),
		fshook.WithWebHDFSLoggers(c.loggers),
	)
}

func (f *fsFlags) filter() vigil.FileFilter {
	filter := vigil.FileFilter{IgnoredExt: f.ignoredExt, KeepIgnored: f.keepIgnored}
	if f.size >= 0 {
		size := f.size
		filter.FileSize = &size
	}
	return filter
}

func makeFileCmd(c *cli) *cobra.Command {
	f := &fsFlags{}
	cmd := &cobra.Command{
		Use:   "file PATH",
		Short: "Wait for a file, or a non-empty directory, to exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := f.hook(c)
			if err != nil {
				return err
			}
			return c.run(cmd, "file", &vigil.FileSensor{Hook: hook, Path: args[0], Filter: f.filter()})
		},
	}
	f.register(cmd)
	return cmd
}

func makeFolderCmd(c *cli) *cobra.Command {
	f := &fsFlags{}
	var beEmpty bool
	cmd := &cobra.Command{
		Use:   "folder PATH",
		Short: "Wait for a directory to hold files, or to be empty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := f.hook(c)
			if err != nil {
				return err
			}
			return c.run(cmd, "folder", &vigil.FolderSensor{Hook: hook, Path: args[0], BeEmpty: beEmpty, Filter: f.filter()})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&beEmpty, "be-empty", false, "wait for the directory to be empty")
	return cmd
}

func makeRegexCmd(c *cli) *cobra.Command {
	f := &fsFlags{}
	cmd := &cobra.Command{
		Use:   "regex PATH PATTERN",
		Short: "Wait for a directory to hold a file whose name matches PATTERN",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := regexp.Compile(args[1])
			if err != nil {
				return fmt.Errorf("%w: pattern: %w", vigil.ErrInvalidConfig, err)
			}
			hook, err := f.hook(c)
			if err != nil {
				return err
			}
			return c.run(cmd, "regex", &vigil.RegexSensor{Hook: hook, Path: args[0], Regex: re, Filter: f.filter()})
		},
	}
	f.register(cmd)
	return cmd
}

func makeDocCmd(c *cli) *cobra.Command {
	var (
		database string
		filter   string
		sqlite   string
		mongoURI string
	)
	cmd := &cobra.Command{
		Use:   "doc COLLECTION",
		Short: "Wait for a document matching a filter to exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := vigil.DocumentQuery{Database: database, Collection: args[0]}
			if err := sonic.UnmarshalString(filter, &query.Filter); err != nil {
				return fmt.Errorf("%w: filter: %w", vigil.ErrInvalidConfig, err)
			}

			switch {
			case sqlite != "":
				store, err := dochook.OpenSQLite(cmd.Context(), sqlite)
				if err != nil {
					return err
				}
				defer store.Close()
				store.SetLoggers(c.loggers)
				return c.run(cmd, "doc", &vigil.DocumentSensor{Hook: store, Query: query})
			case mongoURI != "":
				client, err := dochook.ConnectMongo(cmd.Context(), mongoURI, "")
				if err != nil {
					return err
				}
				defer func() { _ = client.Close(cmd.Context()) }()
				client.SetLoggers(c.loggers)
				return c.run(cmd, "doc", &vigil.DocumentSensor{Hook: client, Query: query})
			default:
				return fmt.Errorf("%w: one of --sqlite or --mongo-uri is required", vigil.ErrInvalidConfig)
			}
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "database, the store default when empty")
	cmd.Flags().StringVar(&filter, "filter", "{}", "JSON filter; keys may be dotted paths")
	cmd.Flags().StringVar(&sqlite, "sqlite", "", "path of a SQLite document store")
	cmd.Flags().StringVar(&mongoURI, "mongo-uri", envString(envMongoURI, ""), "MongoDB connection string, also "+envMongoURI)
	return cmd
}

func makeKVCmd(c *cli) *cobra.Command {
	var (
		addr  string
		token string
		value string
	)
	cmd := &cobra.Command{
		Use:   "kv KEY",
		Short: "Wait for a Consul key to exist, optionally with a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := kvhook.NewConsul(addr,
				kvhook.WithConsulToken(token),
				kvhook.WithConsulLoggers(c.loggers),
			)
			if err != nil {
				return err
			}
			sensor := &vigil.KVSensor{Hook: hook, Key: args[0]}
			if cmd.Flags().Changed("value") {
				sensor.Value = []byte(value)
			}
			return c.run(cmd, "kv", sensor)
		},
	}
	cmd.Flags().StringVar(&addr, "consul-addr", envString(envConsulAddr, ""), "Consul agent address, also "+envConsulAddr)
	cmd.Flags().StringVar(&token, "token", "", "Consul ACL token")
	cmd.Flags().StringVar(&value, "value", "", "wait for this exact value")
	return cmd
}

func makeDNSCmd(c *cli) *cobra.Command {
	var (
		servers    []string
		recordType string
	)
	cmd := &cobra.Command{
		Use:   "dns HOST",
		Short: "Wait for a name to resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qtype, ok := dns.StringToType[strings.ToUpper(recordType)]
			if !ok {
				return fmt.Errorf("%w: unknown record type %q", vigil.ErrInvalidConfig, recordType)
			}
			resolver := vigil.NewDNSResolver(servers...)
			logger := c.loggers.For(vigil.ComponentDNS)
			resolver.Logger = &logger
			return c.run(cmd, "dns", &vigil.DNSSensor{Hook: resolver, Host: args[0], RecordType: qtype})
		},
	}
	cmd.Flags().StringSliceVar(&servers, "server", nil, "DNS servers as host:port; /etc/resolv.conf when empty")
	cmd.Flags().StringVar(&recordType, "type", "A", "record type")
	return cmd
}

func makeHTTPCmd(c *cli) *cobra.Command {
	var (
		method    string
		headers   []string
		jsonField string
		jsonValue string
	)
	cmd := &cobra.Command{
		Use:   "http URL",
		Short: "Wait for an endpoint to answer 2xx, optionally with a JSON field value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: url: %w", vigil.ErrInvalidConfig, err)
			}
			header := make(http.Header)
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("%w: header %q is not key:value", vigil.ErrInvalidConfig, h)
				}
				header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}
			opts := []vigil.HTTPSensorOption{
				vigil.WithHTTPHeader(header),
				vigil.WithHTTPVerbose(c.loggers.Verbose(vigil.ComponentHTTP)),
			}
			if jsonField != "" {
				var want any
				if err := sonic.UnmarshalString(jsonValue, &want); err != nil {
					return fmt.Errorf("%w: json value: %w", vigil.ErrInvalidConfig, err)
				}
				var path []any
				for _, part := range strings.Split(jsonField, ".") {
					if i, err := strconv.Atoi(part); err == nil {
						path = append(path, i)
						continue
					}
					path = append(path, part)
				}
				opts = append(opts, vigil.WithResponseCheck(vigil.JSONFieldEquals(want, path...)))
			}
			return c.run(cmd, "http", vigil.NewHTTPSensor(u, method, opts...))
		},
	}
	cmd.Flags().StringVar(&method, "method", http.MethodGet, "request method")
	cmd.Flags().StringSliceVar(&headers, "header", nil, "request header as key:value")
	cmd.Flags().StringVar(&jsonField, "json-field", "", "dotted path of a JSON field to check, numeric parts index arrays")
	cmd.Flags().StringVar(&jsonValue, "json-value", "true", "JSON value the field must hold")
	return cmd
}

func makeJSONRPCCmd(c *cli) *cobra.Command {
	var (
		params string
		result string
	)
	cmd := &cobra.Command{
		Use:   "jsonrpc URL METHOD",
		Short: "Wait for a JSON-RPC method to return a result, over HTTP or WebSocket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: url: %w", vigil.ErrInvalidConfig, err)
			}
			sensor := &vigil.JSONRPCSensor{
				URL:     u,
				Method:  args[1],
				Params:  []any{},
				Verbose: c.loggers.Verbose(vigil.ComponentHTTP),
			}
			if err := sonic.UnmarshalString(params, &sensor.Params); err != nil {
				return fmt.Errorf("%w: params: %w", vigil.ErrInvalidConfig, err)
			}
			if result != "" {
				var want any
				if err := sonic.UnmarshalString(result, &want); err != nil {
					return fmt.Errorf("%w: result: %w", vigil.ErrInvalidConfig, err)
				}
				sensor.Check = vigil.ResultEquals(want)
			}
			return c.run(cmd, "jsonrpc", sensor)
		},
	}
	cmd.Flags().StringVar(&params, "params", "[]", "JSON array of method parameters")
	cmd.Flags().StringVar(&result, "result", "", "JSON value the result must equal; any non-null, non-false result when empty")
	return cmd
}
