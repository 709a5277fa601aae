package cmd

import (
	"fmt"
	"io"

	"songcatalog/config"
	"songcatalog/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理媒体存储桶中的文件，支持列出文件、查看统计信息、递归显示目录结构、删除目录等功能。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg := config.Load()
		fmt.Fprintf(out, "MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := openMediaStore(ctx, cfg)
		if err != nil {
			return err
		}

		switch {
		case minioDelete:
			if minioPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := store.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Fprintf(out, "已删除 %d 个对象 (前缀: %s)\n", n, minioPrefix)
		case minioRecursive:
			_, objects, err := storage.CollectStats(ctx, store, minioPrefix)
			if err != nil {
				return fmt.Errorf("显示目录结构失败: %w", err)
			}
			storage.WriteTree(out, objects)
		case minioStats:
			stats, _, err := storage.CollectStats(ctx, store, minioPrefix)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			storage.WriteStats(out, stats)
		default:
			objects, err := store.List(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			writeObjects(out, objects)
		}
		return nil
	},
}

func writeObjects(w io.Writer, objects []storage.ObjectInfo) {
	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		rows = append(rows, []string{
			obj.Key,
			humanize.Bytes(uint64(obj.Size)),
			obj.ContentType,
			obj.LastModified.Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(w, renderTable([]string{"Key", "Size", "Type", "Modified"}, rows, 1))
	fmt.Fprintf(w, "共 %d 个对象\n", len(objects))
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "目录前缀")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归显示目录结构")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有对象")
	rootCmd.AddCommand(minioCmd)
}
