package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onsync/onsync/internal/rbac"
)

// errDenied makes a denied access check exit non-zero.
var errDenied = errors.New("access denied")

type navEntry struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Path     string  `json:"path"`
	ParentID string  `json:"parent_id,omitempty"`
	NavOrder float64 `json:"nav_order,omitempty"`
	CanEdit  bool    `json:"can_edit"`
}

func newNavCmd(c *cli) *cobra.Command {
	var menu bool
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "List the pages the signed-in identity may open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			identity := svc.Store.Get()
			pages := rbac.NavigationPages(identity, svc.Catalog)
			if menu {
				pages = rbac.MenuPages(identity, svc.Catalog)
			}
			entries := make([]navEntry, 0, len(pages))
			for _, page := range pages {
				entries = append(entries, navEntry{
					ID:       page.ID,
					Label:    page.Label,
					Path:     page.Path,
					ParentID: page.ParentID,
					NavOrder: page.NavOrder,
					CanEdit:  rbac.CanEditPage(identity, page.ID, svc.Catalog),
				})
			}
			if c.jsonOutput {
				return c.printJSON(map[string]any{"pages": entries})
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tPATH\tEDIT")
			for _, e := range entries {
				edit := "-"
				if e.CanEdit {
					edit = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Label, e.Path, edit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&menu, "menu", false, "only sidebar pages, in menu order")
	return cmd
}

func newCanCmd(c *cli) *cobra.Command {
	var (
		roles      []string
		permission string
		anyOf      []string
	)
	cmd := &cobra.Command{
		Use:   "can [page-id|path]",
		Short: "Decide whether the signed-in identity may open a page",
		Long: `can evaluates one access question for the signed-in identity.

With a page id (or a catalog path such as /staff) it checks the page's
catalog requirements. Without one it evaluates the explicit constraints
given by --role, --permission and --any. Passing --any with an empty value
requires a capability from an empty list, which only a super admin passes.

The command exits non-zero when access is denied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			var req rbac.Request
			if len(args) == 1 {
				pageID := args[0]
				if page, ok := svc.Catalog.LookupPath(pageID); ok {
					pageID = page.ID
				}
				req = rbac.PageRequest{PageID: pageID}
			} else {
				var roleNames, anyNames []string
				if cmd.Flags().Changed("role") {
					roleNames = nonEmpty(roles)
				}
				if cmd.Flags().Changed("any") {
					anyNames = nonEmpty(anyOf)
				}
				legacy, err := rbac.ParseLegacyRequest(roleNames, permission, anyNames)
				if err != nil {
					return err
				}
				req = legacy
			}

			decision := rbac.Evaluate(svc.Store.Get(), req, svc.Catalog)
			if c.jsonOutput {
				if err := c.printJSON(decision); err != nil {
					return err
				}
			} else {
				verdict := "deny"
				if decision.Allow {
					verdict = "allow"
				}
				fmt.Fprintf(c.out, "%s (%s)\n", verdict, decision.Reason)
			}
			if !decision.Allow {
				return errDenied
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&roles, "role", nil, "allowed roles (repeatable)")
	f.StringVar(&permission, "permission", "", "required capability")
	f.StringSliceVar(&anyOf, "any", nil, "capabilities of which at least one is required (repeatable)")
	return cmd
}

// nonEmpty drops blank entries while keeping the result non-nil.
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
