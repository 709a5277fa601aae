package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"songcatalog/core/catalog"
	"songcatalog/model"

	"github.com/spf13/cobra"
)

var (
	listQuery   catalog.ListQuery
	blockReq    catalog.BlockRequest
	availReq    catalog.AvailabilityRequest
	actorFlag   string
	blockScope  string
	availScope  string
	availStatus string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "目录可用性管理",
	Long:  `直接在配置的存储上查看目录、封禁、解封和更新可用性，所有变更都会写入审计记录。`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出目录条目",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(svc *catalog.Service) error {
			result, err := svc.ListCatalog(cmd.Context(), listQuery)
			if err != nil {
				return err
			}
			writeList(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "显示单曲可用性和审计记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(svc *catalog.Service) error {
			detail, err := svc.GetItem(cmd.Context(), catalog.KindSong, args[0])
			if err != nil {
				return err
			}
			writeDetail(cmd.OutOrStdout(), detail)
			return nil
		})
	},
}

var catalogBlockCmd = &cobra.Command{
	Use:   "block <id>",
	Short: "管理员封禁（全局或指定地区）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := blockReq
		req.Scope = model.BlockScope(blockScope)
		req.Actor = actorFlag
		return mutateAndShow(cmd, args[0], func(ctx context.Context, svc *catalog.Service) (*model.Song, error) {
			return svc.Block(ctx, args[0], req)
		})
	},
}

var catalogUnblockCmd = &cobra.Command{
	Use:   "unblock <id>",
	Short: "解除管理员封禁",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateAndShow(cmd, args[0], func(ctx context.Context, svc *catalog.Service) (*model.Song, error) {
			return svc.Unblock(ctx, args[0], catalog.UnblockRequest{Actor: actorFlag})
		})
	},
}

var catalogAvailabilityCmd = &cobra.Command{
	Use:   "availability <id>",
	Short: "更新状态、地区和有效期",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := availReq
		req.Status = model.BaseStatus(availStatus)
		req.Scope = model.BlockScope(availScope)
		req.Actor = actorFlag
		return mutateAndShow(cmd, args[0], func(ctx context.Context, svc *catalog.Service) (*model.Song, error) {
			return svc.UpdateAvailability(ctx, args[0], req)
		})
	},
}

func withCatalog(ctx context.Context, fn func(*catalog.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap(ctx, false, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(catalog.NewService(a.repo))
}

func mutateAndShow(cmd *cobra.Command, id string, fn func(context.Context, *catalog.Service) (*model.Song, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return withCatalog(ctx, func(svc *catalog.Service) error {
		song, err := fn(ctx, svc)
		if err != nil {
			return err
		}
		detail := catalog.Project(song)
		writeDetail(cmd.OutOrStdout(), &detail)
		return nil
	})
}

func writeList(w io.Writer, result *catalog.ListResult) {
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		release := "-"
		if item.ReleaseDate != nil {
			release = item.ReleaseDate.Format("2006-01-02")
		}
		video := "no"
		if item.HasVideo {
			video = "yes"
		}
		rows = append(rows, []string{item.ID, item.Title, item.Artist, item.Collection, release, string(item.EffectiveStatus), video})
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Title", "Artist", "Collection", "Release", "Status", "Video"}, rows))
	fmt.Fprintf(w, "page %d, %d per page, %d total\n", result.Page, result.PerPage, result.Total)
}

func writeDetail(w io.Writer, d *catalog.SongDetail) {
	fmt.Fprintf(w, "%s  %s  [%s]  version %d\n", d.ID, d.Title, d.EffectiveStatus, d.Version)
	if d.AdminBlock != nil {
		fmt.Fprintf(w, "admin block: %s %s by %s (%s)\n",
			d.AdminBlock.Scope, strings.Join(d.AdminBlock.Regions, ","), d.AdminBlock.Actor, d.AdminBlock.ReasonCode)
	}

	regions := make([][]string, 0, len(d.Availability.Regions))
	for _, r := range d.Availability.Regions {
		regions = append(regions, []string{r.Code, string(r.Status), strconv.FormatBool(r.Allowed)})
	}
	fmt.Fprintln(w, renderTable([]string{"Region", "Status", "Allowed"}, regions))

	if len(d.AuditLog) == 0 {
		return
	}
	audit := make([][]string, 0, len(d.AuditLog))
	for _, e := range d.AuditLog {
		audit = append(audit, []string{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			string(e.Action),
			e.Actor,
			string(e.PreviousState) + " -> " + string(e.NewState),
			e.Details,
		})
	}
	fmt.Fprintln(w, renderTable([]string{"When", "Action", "Actor", "Transition", "Details"}, audit))
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return ""
}

func init() {
	f := catalogListCmd.Flags()
	f.StringVarP(&listQuery.Q, "query", "q", "", "标题或艺人")
	f.StringVar(&listQuery.Type, "type", "", "song | collection")
	f.StringVar(&listQuery.Status, "status", "", "Publicado | Programado | No-disponible-region | Bloqueado-admin")
	f.StringVar(&listQuery.HasVideo, "has-video", "", "yes | no")
	f.StringVar(&listQuery.Region, "region", "", "只显示该地区可见的条目")
	f.StringVar(&listQuery.From, "from", "", "创建时间起始 (RFC3339 或 YYYY-MM-DD)")
	f.StringVar(&listQuery.To, "to", "", "创建时间截止 (RFC3339 或 YYYY-MM-DD)")
	f.StringVar(&listQuery.Sort, "sort", "", "recent | title")
	f.IntVar(&listQuery.Page, "page", 1, "页码")
	f.IntVar(&listQuery.PerPage, "per-page", catalog.DefaultPerPage, "每页条数")

	for _, c := range []*cobra.Command{catalogBlockCmd, catalogUnblockCmd, catalogAvailabilityCmd} {
		c.Flags().StringVar(&actorFlag, "actor", defaultActor(), "审计记录中的操作人")
	}

	catalogBlockCmd.Flags().StringVar(&blockScope, "scope", string(model.ScopeGlobal), "global | regions")
	catalogBlockCmd.Flags().StringSliceVar(&blockReq.Regions, "regions", nil, "地区代码，逗号分隔")
	catalogBlockCmd.Flags().StringVar(&blockReq.ReasonCode, "reason", "", strings.Join(catalog.ReasonCodes, " | "))

	af := catalogAvailabilityCmd.Flags()
	af.StringVar(&availStatus, "status", "", "scheduled | published | region-blocked | blocked")
	af.StringVar(&availScope, "scope", "", "global | regions")
	af.StringSliceVar(&availReq.Regions, "regions", nil, "地区代码，逗号分隔")
	af.StringVar(&availReq.Reason, "reason", "", "审计说明")
	af.StringVar(&availReq.ValidFrom, "valid-from", "", "生效时间 (RFC3339 或 YYYY-MM-DD)")
	af.StringVar(&availReq.ValidTo, "valid-to", "", "截止时间 (RFC3339 或 YYYY-MM-DD)")

	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd, catalogBlockCmd, catalogUnblockCmd, catalogAvailabilityCmd)
	rootCmd.AddCommand(catalogCmd)
}
