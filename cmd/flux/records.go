package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fluxweb/sdk/flux"
)

// recordKind adapts one directory resource to the list/show/delete commands.
type recordKind struct {
	name   string
	scoped bool
	header table.Row
	list   func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (any, []table.Row, bool, error)
	show   func(ctx context.Context, c *flux.Client, org, id string) (any, error)
	remove func(ctx context.Context, c *flux.Client, org, id string) error
}

func lister[T any](fn func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[T], error), row func(T) table.Row) func(context.Context, *flux.Client, string, flux.Filter) (any, []table.Row, bool, error) {
	return func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (any, []table.Row, bool, error) {
		l, err := fn(ctx, c, org, f)
		if err != nil {
			return nil, nil, false, err
		}
		rows := make([]table.Row, 0, len(l.Items))
		for _, v := range l.Items {
			rows = append(rows, row(v))
		}
		return l.Items, rows, l.Absent, nil
	}
}

func shower[T any](fn func(ctx context.Context, c *flux.Client, org, id string) (T, error)) func(context.Context, *flux.Client, string, string) (any, error) {
	return func(ctx context.Context, c *flux.Client, org, id string) (any, error) {
		return fn(ctx, c, org, id)
	}
}

func refName[T any](v *T, name func(*T) string) string {
	if v == nil {
		return ""
	}
	return name(v)
}

var recordKinds = map[string]recordKind{
	"organisations": {
		name:   "organisations",
		header: table.Row{"ID", "Name", "Domain"},
		list: lister(func(ctx context.Context, c *flux.Client, _ string, f flux.Filter) (flux.Listing[flux.Organisation], error) {
			return c.Organisations.List(ctx, f)
		}, func(o flux.Organisation) table.Row { return table.Row{o.ID, o.Name, o.Domain} }),
		show: shower(func(ctx context.Context, c *flux.Client, _, id string) (flux.Organisation, error) {
			return c.Organisations.Get(ctx, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, _, id string) error { return c.Organisations.Delete(ctx, id) },
	},
	"programmes": {
		name:   "programmes",
		scoped: true,
		header: table.Row{"ID", "Name", "Manager"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Programme], error) {
			return c.Programmes.List(ctx, org, f)
		}, func(p flux.Programme) table.Row {
			return table.Row{p.ID, p.Name, refName(p.Manager, func(m *flux.Person) string { return m.Name })}
		}),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Programme, error) {
			return c.Programmes.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Programmes.Delete(ctx, org, id) },
	},
	"projects": {
		name:   "projects",
		scoped: true,
		header: table.Row{"ID", "Name", "Programme", "Status"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Project], error) {
			return c.Projects.List(ctx, org, f)
		}, func(p flux.Project) table.Row {
			return table.Row{p.ID, p.Name, refName(p.Programme, func(m *flux.Programme) string { return m.Name }), p.Status}
		}),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Project, error) {
			return c.Projects.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Projects.Delete(ctx, org, id) },
	},
	"grades": {
		name:   "grades",
		scoped: true,
		header: table.Row{"ID", "Name"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Grade], error) {
			return c.Grades.List(ctx, org, f)
		}, func(g flux.Grade) table.Row { return table.Row{g.ID, g.Name} }),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Grade, error) {
			return c.Grades.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Grades.Delete(ctx, org, id) },
	},
	"practices": {
		name:   "practices",
		scoped: true,
		header: table.Row{"ID", "Name", "Head", "Cost centre"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Practice], error) {
			return c.Practices.List(ctx, org, f)
		}, func(p flux.Practice) table.Row {
			return table.Row{p.ID, p.Name, refName(p.Head, func(m *flux.Person) string { return m.Name }), p.CostCentre}
		}),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Practice, error) {
			return c.Practices.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Practices.Delete(ctx, org, id) },
	},
	"roles": {
		name:   "roles",
		scoped: true,
		header: table.Row{"ID", "Title", "Grade", "Practice"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Role], error) {
			return c.Roles.List(ctx, org, f)
		}, func(r flux.Role) table.Row {
			return table.Row{
				r.ID, r.Title,
				refName(r.Grade, func(g *flux.Grade) string { return g.Name }),
				refName(r.Practice, func(p *flux.Practice) string { return p.Name }),
			}
		}),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Role, error) {
			return c.Roles.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Roles.Delete(ctx, org, id) },
	},
	"people": {
		name:   "people",
		scoped: true,
		header: table.Row{"ID", "Name", "Email", "Role", "Employment", "FTE", "Location"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Person], error) {
			return c.People.List(ctx, org, f)
		}, func(p flux.Person) table.Row {
			return table.Row{
				p.ID, p.Name, p.EmailAddress,
				refName(p.Role, func(r *flux.Role) string { return r.Title }),
				p.Employment, p.FullTimeEquivalent,
				refName(p.Location, func(l *flux.Location) string { return l.Name }),
			}
		}),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Person, error) {
			return c.People.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.People.Delete(ctx, org, id) },
	},
	"locations": {
		name:   "locations",
		scoped: true,
		header: table.Row{"ID", "Name", "Address"},
		list: lister(func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Location], error) {
			return c.Locations.List(ctx, org, f)
		}, func(l flux.Location) table.Row { return table.Row{l.ID, l.Name, l.Address} }),
		show: shower(func(ctx context.Context, c *flux.Client, org, id string) (flux.Location, error) {
			return c.Locations.Get(ctx, org, id)
		}),
		remove: func(ctx context.Context, c *flux.Client, org, id string) error { return c.Locations.Delete(ctx, org, id) },
	},
}

var kindAliases = map[string]string{
	"organisation": "organisations",
	"programme":    "programmes",
	"project":      "projects",
	"grade":        "grades",
	"practice":     "practices",
	"role":         "roles",
	"person":       "people",
	"location":     "locations",
}

func kindNames() string {
	names := make([]string, 0, len(recordKinds))
	for name := range recordKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// lookupKind resolves a kind name and checks the organisation flag against it.
func lookupKind(name, org string) (recordKind, error) {
	name = strings.ToLower(name)
	if alias, ok := kindAliases[name]; ok {
		name = alias
	}
	k, ok := recordKinds[name]
	if !ok {
		return recordKind{}, fmt.Errorf("unknown kind %q (one of %s)", name, kindNames())
	}
	if k.scoped && org == "" {
		return recordKind{}, fmt.Errorf("--organisation is required for %s", k.name)
	}
	return k, nil
}

func parseFilters(pairs []string) (flux.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	f := flux.Filter{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", p)
		}
		f[k] = v
	}
	return f, nil
}

func listCmd() *cobra.Command {
	var org string
	var filters []string
	cmd := &cobra.Command{
		Use:   "list KIND",
		Short: "List directory records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := lookupKind(args[0], org)
			if err != nil {
				return err
			}
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *flux.Client) error {
				items, rows, absent, err := k.list(ctx, c, org, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if absent {
					fmt.Printf("No %s.\n", k.name)
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(k.header)
				tw.AppendRows(rows)
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&org, "organisation", "o", "", "organisation id")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter as key=value (repeatable)")
	return cmd
}

func showCmd() *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "show KIND ID",
		Short: "Show one directory record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := lookupKind(args[0], org)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *flux.Client) error {
				v, err := k.show(ctx, c, org, args[1])
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
	cmd.Flags().StringVarP(&org, "organisation", "o", "", "organisation id")
	return cmd
}

func deleteCmd() *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "delete KIND ID",
		Short: "Delete a directory record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := lookupKind(args[0], org)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *flux.Client) error {
				if err := k.remove(ctx, c, org, args[1]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&org, "organisation", "o", "", "organisation id")
	return cmd
}
