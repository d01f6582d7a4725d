package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reviewline/internal/app"
	"reviewline/internal/authz"
	"reviewline/internal/config"
	"reviewline/internal/correction"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/migrate"
	"reviewline/internal/repo"
	"reviewline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Reviewline CLI",
	Long: `Reviewline runs a reviewed digital repository.
Core concepts:
- Workspace: your .reviewline directory with the database; the site config lives in the DB.
- Site: the singleton root; communities hold collections, collections hold items.
- Submissions: a workspace item is an editable draft. Submitting routes it to the
  collection's review group, or installs it directly when the collection has none.
- Tasks: pool tasks are open review work; claiming one makes it yours alone.
  Approve installs the item, reject sends it back to the submitter's workspace.
- Corrections: a correction is a shadow copy of an installed item. Approving it
  merges the shadow's metadata over the original; rejecting keeps the shadow editable.
- Authorizations: features are named permission checks; a grant id like
  actor_feature_type_target asks whether a feature holds for an actor on a target.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REVIEWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting actor email")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(siteCmd())
	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(communityCmd())
	rootCmd.AddCommand(collectionCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(correctionCmd())
	rootCmd.AddCommand(authzCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func siteCmd() *cobra.Command {
	site := &cobra.Command{Use: "site", Short: "Manage the site"}
	site.AddCommand(siteInitCmd())
	site.AddCommand(siteShowCmd())
	return site
}

func siteInitCmd() *cobra.Command {
	var name, adminEmail string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the site with a first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBareEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.InitSite(ctx, name, "local")
				if err != nil {
					return err
				}
				admin, err := e.CreateActor(ctx, adminEmail, true, "local")
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"site": s, "admin": admin})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "site name")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "first admin email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("admin-email")
	return cmd
}

func siteShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetSite(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func configCommand() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect site config",
		Long:  "Config is the rulebook stored in the DB: correction types with their topics and predicates, webhook endpoints, and evaluator toggles. Import from reviewline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import site config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if !actor.Admin {
					return fmt.Errorf("admin required")
				}
				if err := e.UpdateSiteConfig(ctx, cfg, actor.ID); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print a starter reviewline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.DefaultYAML)
			return nil
		},
	}
	return cmd
}

func communityCmd() *cobra.Command {
	com := &cobra.Command{Use: "community", Short: "Manage communities"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create community",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateCommunity(ctx, name, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "community name")
	_ = create.MarkFlagRequired("name")
	list := &cobra.Command{
		Use:   "list",
		Short: "List communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cs, err := r.ListCommunities(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(cs)
			})
		},
	}
	com.AddCommand(create, list)
	return com
}

func collectionCmd() *cobra.Command {
	col := &cobra.Command{Use: "collection", Short: "Manage collections"}
	col.AddCommand(collectionCreateCmd())
	col.AddCommand(collectionListCmd())
	col.AddCommand(collectionReviewGroupCmd())
	return col
}

func collectionCreateCmd() *cobra.Command {
	var communityID, name, reviewGroup string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateCollection(ctx, engine.CollectionCreateOptions{
					CommunityID:   communityID,
					Name:          name,
					ReviewGroupID: reviewGroup,
					ActorID:       actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "community id")
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.Flags().StringVar(&reviewGroup, "review-group", "", "review group id (empty: submissions install directly)")
	_ = cmd.MarkFlagRequired("community")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func collectionListCmd() *cobra.Command {
	var communityID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cs, err := r.ListCollections(ctx, communityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Community", "Review group"})
				for _, c := range cs {
					group := ""
					if c.ReviewGroupID != nil {
						group = *c.ReviewGroupID
					}
					tw.AppendRow(table.Row{c.ID, c.Name, c.CommunityID, group})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&communityID, "community", "", "community filter")
	return cmd
}

func collectionReviewGroupCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "set-review-group <collection-id>",
		Short: "Set or clear the review group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.SetCollectionReviewGroup(ctx, args[0], groupID, actor.ID); err != nil {
					return err
				}
				c, err := e.Repo.GetCollection(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "group id (empty clears)")
	return cmd
}

func actorCmd() *cobra.Command {
	act := &cobra.Command{Use: "actor", Short: "Manage actors"}
	var email string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				requester, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if !requester.Admin {
					return fmt.Errorf("admin required")
				}
				a, err := e.CreateActor(ctx, email, admin, requester.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "actor email")
	create.Flags().BoolVar(&admin, "admin", false, "grant admin")
	_ = create.MarkFlagRequired("email")

	var keyName string
	apikey := &cobra.Command{
		Use:   "apikey",
		Short: "Mint an API key for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				k, raw, err := e.CreateAPIKey(ctx, actor.ID, keyName, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": k.ID, "actor_id": k.ActorID, "key": raw})
			})
		},
	}
	apikey.Flags().StringVar(&keyName, "name", "cli", "key name")

	act.AddCommand(create, apikey)
	return act
}

func groupCmd() *cobra.Command {
	grp := &cobra.Command{Use: "group", Short: "Manage review groups"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				g, err := e.CreateGroup(ctx, name, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "group name")
	_ = create.MarkFlagRequired("name")

	var memberEmail string
	addMember := &cobra.Command{
		Use:   "add-member <group-id>",
		Short: "Add a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				member, err := e.Repo.GetActorByEmail(ctx, memberEmail)
				if err != nil {
					return err
				}
				if err := e.AddGroupMember(ctx, args[0], member.ID, actor.ID); err != nil {
					return err
				}
				members, err := e.Repo.ListGroupMembers(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(members)
			})
		},
	}
	addMember.Flags().StringVar(&memberEmail, "email", "", "member email")
	_ = addMember.MarkFlagRequired("email")

	members := &cobra.Command{
		Use:   "members <group-id>",
		Short: "List members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ms, err := r.ListGroupMembers(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ms)
			})
		},
	}
	grp.AddCommand(create, addMember, members)
	return grp
}

func itemCmd() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Inspect and manage items",
	}
	item.AddCommand(itemListCmd())
	item.AddCommand(itemShowCmd())
	item.AddCommand(itemWithdrawCmd())
	item.AddCommand(itemReinstateCmd())
	return item
}

func itemListCmd() *cobra.Command {
	var collectionID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListItems(ctx, repo.ItemFilters{CollectionID: collectionID, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Collection", "Archived", "Withdrawn", "Discoverable"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.CollectionID, it.InArchive, it.Withdrawn, it.Discoverable})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "collection filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func itemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show item with metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				it, err := r.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				md, err := r.ListMetadata(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"item": it, "metadata": md})
			})
		},
	}
	return cmd
}

func itemWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Withdraw an installed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				it, err := e.Withdraw(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	return cmd
}

func itemReinstateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reinstate <id>",
		Short: "Reinstate a withdrawn item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				it, err := e.Reinstate(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	return cmd
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{
		Use:   "workspace",
		Short: "Manage submissions",
		Long:  "Workspace items are editable drafts. Submit one to route it through review, or straight into the archive when the collection has no review group.",
	}
	ws.AddCommand(workspaceCreateCmd())
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceSubmitCmd())
	ws.AddCommand(workspaceMetadataCmd())
	return ws
}

func workspaceCreateCmd() *cobra.Command {
	var collectionID, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				w, err := e.CreateWorkspaceItem(ctx, collectionID, actor.ID, title)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "collection id")
	cmd.Flags().StringVar(&title, "title", "", "item title")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List own workspace items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				submitter := actor.ID
				if actor.Admin {
					submitter = ""
				}
				ws, err := e.Repo.ListWorkspaceItems(ctx, submitter)
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	return cmd
}

func workspaceSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <workspace-item-id>",
		Short: "Submit a draft into review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.Submit(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func workspaceMetadataCmd() *cobra.Command {
	var schema, element, qualifier string
	var values []string
	cmd := &cobra.Command{
		Use:   "set-metadata <item-id>",
		Short: "Replace values of one metadata field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.SetItemMetadata(ctx, args[0], schema, element, qualifier, values, actor); err != nil {
					return err
				}
				md, err := e.Repo.ListMetadata(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(md)
			})
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "dc", "metadata schema")
	cmd.Flags().StringVar(&element, "element", "", "metadata element")
	cmd.Flags().StringVar(&qualifier, "qualifier", "", "metadata qualifier")
	cmd.Flags().StringArrayVar(&values, "value", []string{}, "value (repeatable)")
	_ = cmd.MarkFlagRequired("element")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Work the review queue",
		Long:  "Pool tasks are open review work for a group. Claim one to make it yours, then approve, reject with a reason, or return it to the pool.",
	}
	task.AddCommand(taskPoolCmd())
	task.AddCommand(taskClaimCmd())
	task.AddCommand(taskClaimedCmd())
	task.AddCommand(taskApproveCmd())
	task.AddCommand(taskRejectCmd())
	task.AddCommand(taskReturnCmd())
	return task
}

func taskPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "List claimable tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				var tasks []domain.PoolTask
				if actor.Admin {
					tasks, err = e.Repo.ListPoolTasks(ctx)
				} else {
					tasks, err = e.Repo.ListPoolTasksFor(ctx, actor.ID)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Workflow item", "Group", "Created"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.WorkflowItemID, t.GroupID, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <pool-task-id>",
		Short: "Claim a pool task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				ct, err := e.Claim(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(ct)
			})
		},
	}
	return cmd
}

func taskClaimedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claimed",
		Short: "List own claimed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				owner := actor.ID
				if actor.Admin {
					owner = ""
				}
				tasks, err := e.Repo.ListClaimedTasks(ctx, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	}
	return cmd
}

func taskApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <claimed-task-id>",
		Short: "Approve and install the submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.Approve(ctx, args[0], actor); err != nil {
					return err
				}
				fmt.Println("approved")
				return nil
			})
		},
	}
	return cmd
}

func taskRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <claimed-task-id>",
		Short: "Reject the submission back to its submitter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.Reject(ctx, args[0], reason, actor); err != nil {
					return err
				}
				fmt.Println("rejected")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskReturnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "return <claimed-task-id>",
		Short: "Return a claimed task to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				pt, err := e.ReturnToPool(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(pt)
			})
		},
	}
	return cmd
}

func correctionCmd() *cobra.Command {
	cor := &cobra.Command{
		Use:   "correction",
		Short: "Manage corrections",
		Long:  "A correction shadows an installed item with an editable copy. It goes through the same review as a fresh submission; approval merges the copy over the original.",
	}
	cor.AddCommand(correctionCreateCmd())
	cor.AddCommand(correctionTypesCmd())
	return cor
}

func correctionCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <item-id>",
		Short: "Open a correction for an installed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				w, err := e.CreateCorrection(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func correctionTypesCmd() *cobra.Command {
	var itemID string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List correction types, optionally filtered by item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cat := correction.NewCatalog(e.Config, e.Repo)
				if itemID == "" {
					return printJSONOrTable(cat.FindAll())
				}
				it, err := e.Repo.GetItem(ctx, itemID)
				if err != nil {
					return err
				}
				types, err := cat.FindApplicable(ctx, it)
				if err != nil {
					return err
				}
				return printJSONOrTable(types)
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	return cmd
}

func authzCmd() *cobra.Command {
	az := &cobra.Command{
		Use:   "authz",
		Short: "Authorization checks",
	}
	az.AddCommand(authzCheckCmd())
	az.AddCommand(authzFeaturesCmd())
	return az
}

func authzCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <grant-id>",
		Short: "Check one grant id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				resolver := newResolver(e)
				g, err := resolver.ViewGrant(ctx, &actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": g.ID.String(), "granted": true})
			})
		},
	}
	return cmd
}

func authzFeaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "List registered features",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(newResolver(e).Registry.Names())
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	var n int
	var entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, entityKind, entityID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("REVIEWLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("REVIEWLINE_JWT_SECRET is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				token, err := server.IssueToken(secret, actor.ID)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveSiteAndConfig(cmd.Context(), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("REVIEWLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("REVIEWLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Resolver: newResolver(e),
				Catalog:  correction.NewCatalog(cfg, e.Repo),
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reviewline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newResolver(e engine.Engine) authz.Resolver {
	reg := authz.NewRegistry()
	authz.RegisterBuiltins(reg, e.Repo, e.Config.Authz.FaultFeature)
	return authz.Resolver{Registry: reg, Repo: e.Repo}
}

// currentActor resolves --actor (an email) against the store. Commands
// that mutate state need it; listings mostly go through withRepo instead.
func currentActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	email := strings.TrimSpace(viper.GetString("actor"))
	if email == "" {
		return domain.Actor{}, fmt.Errorf("actor not specified; use --actor <email>")
	}
	return e.Repo.GetActorByEmail(ctx, email)
}

// withBareEngine opens the workspace without requiring an initialized
// site. Only `site init` uses it.
func withBareEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, config.Default(""))
	return fn(ctx, e)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveSiteAndConfig(ctx, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
