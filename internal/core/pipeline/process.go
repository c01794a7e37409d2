package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/motion"
	"github.com/gowvp/edgecam/internal/core/telemetry"
)

// process 转码、识别、上传，上传成功后删除本地文件
// 只有上传失败返回错误，此时本地文件保留
// 处理途中收到关机信号时不上传或放弃上传，按中断片段保留
func (o *Orchestrator) process(ctx context.Context, res clip.Result, trigger motion.Score) error {
	log := o.log.With("clip", res.ID)
	report := Report{
		Clip:    res,
		Source:  o.src.Type(),
		Path:    res.Path,
		Trigger: trigger,
	}

	if o.transcoder != nil {
		out, err := o.transcoder.Transcode(ctx, res.Path)
		if err != nil {
			o.transcodeFailed.Add(1)
			o.metrics.PutMetric(telemetry.MetricTranscodeFailed, 1, telemetry.UnitCount)
			log.WarnContext(ctx, "transcoding failed, will use original file", "err", err)
		} else {
			report.Path = out
			report.Transcoded = true
		}
	}
	report.Size = fileSize(report.Path)

	if o.tagger != nil {
		report.Tags = o.tagger.Tag(ctx, res.Retained, o.cfg.TagSampleRate)
		for _, name := range report.Tags.Names() {
			o.metrics.PutMetric(telemetry.MetricObjectDetected, 1, telemetry.UnitCount, "class", name)
		}
		if !report.Tags.Empty() {
			log.InfoContext(ctx, "objects detected", "classes", report.Tags.Names(), "detections", len(report.Tags.Detections))
		}
	}

	if o.uploader == nil {
		log.InfoContext(ctx, "upload disabled, clip kept locally", "path", report.Path)
		o.save(ctx, report)
		return nil
	}

	if ctx.Err() != nil {
		o.keepReport(report)
		return nil
	}
	rec, err := o.uploader.Upload(ctx, report.Path, "", Metadata(report))
	report.Upload = &rec
	if err != nil && ctx.Err() != nil {
		report.Err = err
		o.keepReport(report)
		return nil
	}
	if err != nil {
		o.uploadFailures.Add(1)
		o.metrics.PutMetric(telemetry.MetricUploadFailed, 1, telemetry.UnitCount)
		report.Err = err
		o.save(ctx, report)
		return fmt.Errorf("%w: %s: %w", ErrDelivery, report.Path, err)
	}

	o.clipsUploaded.Add(1)
	o.metrics.PutMetric(telemetry.MetricVideoUploaded, 1, telemetry.UnitCount)
	o.metrics.PutMetric(telemetry.MetricUploadDuration, rec.Elapsed.Seconds(), telemetry.UnitSeconds)
	o.metrics.PutMetric(telemetry.MetricVideoSize, float64(rec.Size)/(1024*1024), telemetry.UnitMegabytes)
	o.metrics.PutMetric(telemetry.MetricMotionScore, float64(trigger.Score), telemetry.UnitNone)

	if err := os.Remove(report.Path); err != nil {
		log.WarnContext(ctx, "failed to delete local file", "path", report.Path, "err", err)
	} else {
		report.Removed = true
		log.InfoContext(ctx, "deleted local file", "path", report.Path)
	}
	o.save(ctx, report)
	return nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
